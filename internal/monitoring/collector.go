package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/records-cli/internal/model"
)

// Snapshot holds a point-in-time view of stored submission outcomes.
type Snapshot struct {
	BatchID           string    `json:"batch_id,omitempty"`
	Total             int       `json:"total"`
	Succeeded         int       `json:"succeeded"`
	Failed            int       `json:"failed"`
	Manual            int       `json:"manual"`
	NeedsVerification int       `json:"needs_verification"`
	FailRate          float64   `json:"fail_rate"`
	ManualRate        float64   `json:"manual_rate"`
	CollectedAt       time.Time `json:"collected_at"`
}

// StatsSource is the part of the result store the collector reads.
type StatsSource interface {
	Statistics(ctx context.Context, batchID string) (*model.Statistics, error)
}

// Collector builds snapshots from stored statistics.
type Collector struct {
	src StatsSource
}

// NewCollector creates a new snapshot collector.
func NewCollector(src StatsSource) *Collector {
	return &Collector{src: src}
}

// Collect snapshots one batch, or every stored result when batchID is empty.
func (c *Collector) Collect(ctx context.Context, batchID string) (*Snapshot, error) {
	stats, err := c.src.Statistics(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load statistics")
	}
	return SnapshotOf(batchID, stats), nil
}

// SnapshotOf derives rates from statistics. Manual counts entries blocked by
// a CAPTCHA or a login wall.
func SnapshotOf(batchID string, stats *model.Statistics) *Snapshot {
	snap := &Snapshot{BatchID: batchID, Total: stats.Total, CollectedAt: time.Now().UTC()}
	for status, n := range stats.ByStatus {
		switch {
		case status.CountsAsSuccess():
			snap.Succeeded += n
		case status == model.StatusFailed:
			snap.Failed += n
		case status == model.StatusCaptchaBlocked, status == model.StatusLoginRequired:
			snap.Manual += n
		case status == model.StatusNeedsVerification:
			snap.NeedsVerification += n
		}
	}
	if snap.Total > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
		snap.ManualRate = float64(snap.Manual) / float64(snap.Total)
	}
	return snap
}
