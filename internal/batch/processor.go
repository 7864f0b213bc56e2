// Package batch runs form entries through their handlers one at a time and
// records every outcome.
package batch

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/records-cli/internal/handler"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/monitoring"
	"github.com/sells-group/records-cli/internal/store"
)

// NewBatchID returns a short random run tag.
func NewBatchID() string {
	return uuid.NewString()[:8]
}

// Options configures a Processor.
type Options struct {
	BatchID    string
	RateLimit  time.Duration
	Resume     bool
	MaxRetries int
	Extra      map[string]string
}

// Processor submits entries sequentially. It is not safe for concurrent use.
type Processor struct {
	store    store.Store
	handlers *handler.Registry
	gate     *Gate
	metrics  *monitoring.Recorder
	opts     Options

	counts Counts
	now    func() time.Time
}

// Counts are the in-memory counters of one processor.
type Counts struct {
	Processed int `json:"processed" yaml:"processed"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	// NeedsReview counts processed entries that ended neither succeeded nor
	// failed, e.g. needs_verification.
	NeedsReview int `json:"needs_review" yaml:"needs_review"`
	Skipped     int `json:"skipped" yaml:"skipped"`
}

// NewProcessor wires a processor. metrics may be nil.
func NewProcessor(st store.Store, handlers *handler.Registry, metrics *monitoring.Recorder, opts Options) *Processor {
	if opts.BatchID == "" {
		opts.BatchID = NewBatchID()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Processor{
		store:    st,
		handlers: handlers,
		gate:     NewGate(opts.RateLimit),
		metrics:  metrics,
		opts:     opts,
		now:      time.Now,
	}
}

// BatchID returns the tag applied to every stored result.
func (p *Processor) BatchID() string { return p.opts.BatchID }

// Counts returns the counters accumulated so far.
func (p *Processor) Counts() Counts { return p.counts }

// Run processes entries in order. With Resume set, entries already stored
// with a satisfied status are skipped. Handler failures become results; a
// store failure aborts the run.
func (p *Processor) Run(ctx context.Context, entries []model.FormEntry) error {
	done := map[string]struct{}{}
	if p.opts.Resume {
		var err error
		done, err = p.store.ProcessedIDs(ctx)
		if err != nil {
			return eris.Wrap(err, "batch: load processed ids")
		}
	}

	log := zap.L().With(zap.String("batch_id", p.opts.BatchID))
	log.Info("batch: starting run",
		zap.Int("entries", len(entries)),
		zap.Int("already_processed", len(done)),
	)

	for i, e := range entries {
		if _, ok := done[e.UniqueID()]; ok {
			p.counts.Skipped++
			if p.metrics != nil {
				p.metrics.RecordSkip()
			}
			log.Debug("batch: skipping processed entry", zap.String("entry", e.UniqueID()))
			continue
		}
		attempt, err := p.nextRetryCount(ctx, e.UniqueID())
		if err != nil {
			return err
		}
		if _, err := p.process(ctx, e, attempt, i+1, len(entries)); err != nil {
			return err
		}
	}
	return nil
}

// RetryFailed reprocesses the entries whose stored result is failed with
// fewer than MaxRetries attempts. entries supplies the input rows; failed ids
// absent from it are ignored.
func (p *Processor) RetryFailed(ctx context.Context, entries []model.FormEntry) error {
	ids, err := p.store.FailedIDs(ctx, p.opts.MaxRetries)
	if err != nil {
		return eris.Wrap(err, "batch: load failed ids")
	}

	byID := make(map[string]model.FormEntry, len(entries))
	for _, e := range entries {
		byID[e.UniqueID()] = e
	}

	var retry []model.FormEntry
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			retry = append(retry, e)
		}
	}
	zap.L().Info("batch: retrying failed entries",
		zap.String("batch_id", p.opts.BatchID),
		zap.Int("failed", len(ids)),
		zap.Int("matched", len(retry)),
	)

	for i, e := range retry {
		attempt, err := p.nextRetryCount(ctx, e.UniqueID())
		if err != nil {
			return err
		}
		if _, err := p.process(ctx, e, attempt, i+1, len(retry)); err != nil {
			return err
		}
	}
	return nil
}

// nextRetryCount is 0 for an entry with no stored result and the stored
// retry_count plus one otherwise, so FailedIDs keeps its cap across runs.
func (p *Processor) nextRetryCount(ctx context.Context, id string) (int, error) {
	prev, err := p.store.Get(ctx, id)
	if err != nil {
		return 0, eris.Wrapf(err, "batch: load %s", id)
	}
	if prev == nil {
		return 0, nil
	}
	return prev.RetryCount + 1, nil
}

func (p *Processor) process(ctx context.Context, e model.FormEntry, retryCount, n, total int) (model.SubmissionResult, error) {
	if err := p.gate.Wait(ctx); err != nil {
		return model.SubmissionResult{}, eris.Wrap(err, "batch: rate limit wait")
	}

	log := zap.L().With(
		zap.String("batch_id", p.opts.BatchID),
		zap.String("entry", e.UniqueID()),
		zap.String("form_type", string(e.FormType)),
	)
	log.Info("batch: processing entry",
		zap.String("name", e.DisplayName()),
		zap.Int("n", n),
		zap.Int("total", total),
	)

	var res model.SubmissionResult
	if h := p.handlers.For(e.FormType); h != nil {
		res = h.Submit(handler.WithBatchID(ctx, p.opts.BatchID), e, p.opts.Extra)
	} else {
		now := p.now()
		res = handler.NewResult(e, model.StatusFailed, now)
		res.FailureReason = model.FailureUnknown
		res.ErrorMessage = "no handler registered for " + string(e.FormType)
		res.CompletedAt = now
	}
	res.RetryCount = retryCount

	if err := p.store.Save(ctx, res, p.opts.BatchID); err != nil {
		if p.metrics != nil {
			p.metrics.RecordStoreError()
		}
		return res, eris.Wrapf(err, "batch: save %s", e.UniqueID())
	}
	if p.metrics != nil {
		p.metrics.RecordResult(res)
	}

	p.counts.Processed++
	switch {
	case res.Status.CountsAsSuccess():
		p.counts.Succeeded++
		log.Info("batch: entry succeeded",
			zap.String("status", string(res.Status)),
			zap.String("confirmation", res.ConfirmationNumber),
		)
	case res.Status == model.StatusFailed || res.Status == model.StatusCaptchaBlocked || res.Status == model.StatusLoginRequired:
		p.counts.Failed++
		log.Warn("batch: entry failed",
			zap.String("status", string(res.Status)),
			zap.String("reason", string(res.FailureReason)),
			zap.String("error", res.ErrorMessage),
		)
	default:
		p.counts.NeedsReview++
		log.Info("batch: entry needs review", zap.String("status", string(res.Status)))
	}
	return res, nil
}

// Summary combines the run counters with stored statistics.
type Summary struct {
	BatchID string            `json:"batch_id" yaml:"batch_id"`
	Run     Counts            `json:"run" yaml:"run"`
	Batch   *model.Statistics `json:"batch" yaml:"batch"`
	Overall *model.Statistics `json:"overall" yaml:"overall"`
}

// SuccessRate is the share of this batch's stored results that count as
// success, in percent.
func (s *Summary) SuccessRate() float64 {
	if s.Batch == nil || s.Batch.Total == 0 {
		return 0
	}
	ok := 0
	for st, n := range s.Batch.ByStatus {
		if st.CountsAsSuccess() {
			ok += n
		}
	}
	return float64(ok) / float64(s.Batch.Total) * 100
}

// Statuses lists the statuses present in the batch, sorted.
func (s *Summary) Statuses() []model.SubmissionStatus {
	if s.Batch == nil {
		return nil
	}
	out := make([]model.SubmissionStatus, 0, len(s.Batch.ByStatus))
	for st := range s.Batch.ByStatus {
		out = append(out, st)
	}
	slices.Sort(out)
	return out
}

// Summary loads batch and overall statistics concurrently.
func (p *Processor) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{BatchID: p.opts.BatchID, Run: p.counts}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := p.store.Statistics(gctx, p.opts.BatchID)
		sum.Batch = st
		return eris.Wrap(err, "batch: batch statistics")
	})
	g.Go(func() error {
		st, err := p.store.Statistics(gctx, "")
		sum.Overall = st
		return eris.Wrap(err, "batch: overall statistics")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sum, nil
}
