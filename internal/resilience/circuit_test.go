package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(BreakerConfig{Threshold: threshold, Cooldown: cooldown})
	cb.now = clock.Now
	return cb, clock
}

func failing(context.Context) (string, error) { return "", errors.New("502 bad gateway") }
func passing(context.Context) (string, error) { return "ok", nil }

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	v, err := Call(context.Background(), cb, passing)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		_, _ = Call(ctx, cb, failing)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	_, err := Call(ctx, cb, func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_, _ = Call(ctx, cb, failing)
	_, _ = Call(ctx, cb, failing)
	_, _ = Call(ctx, cb, passing)
	_, _ = Call(ctx, cb, failing)
	_, _ = Call(ctx, cb, failing)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ProbeAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	ctx := context.Background()

	_, _ = Call(ctx, cb, failing)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	_, err := Call(ctx, cb, passing)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)
	ctx := context.Background()

	_, _ = Call(ctx, cb, failing)
	clock.Advance(31 * time.Second)
	_, _ = Call(ctx, cb, failing)

	assert.Equal(t, StateOpen, cb.State())
	_, err := Call(ctx, cb, passing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_CountsFilter(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 1, Counts: IsTransient})

	_, _ = Call(context.Background(), cb, func(context.Context) (string, error) {
		return "", errors.New("400 bad request")
	})
	assert.Equal(t, StateClosed, cb.State())

	_, _ = Call(context.Background(), cb, func(context.Context) (string, error) {
		return "", NewTransientError(errors.New("503"), 503)
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	_, _ = Call(context.Background(), cb, failing)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCall_NilBreaker(t *testing.T) {
	v, err := Call[string](context.Background(), nil, passing)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 1000})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), cb, failing)
			} else {
				_, _ = Call(context.Background(), cb, passing)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
