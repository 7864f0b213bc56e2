package batch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between the starts of consecutive
// submissions. The first caller passes immediately.
type Gate struct {
	lim *rate.Limiter
}

// NewGate returns a gate releasing one caller per interval. A non-positive
// interval disables pacing.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next submission may start or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.lim.Wait(ctx)
}
