package store

import (
	"context"

	"github.com/sells-group/records-cli/internal/model"
)

// ResultFilter scopes result listings. Zero values mean no restriction.
type ResultFilter struct {
	BatchID string                 `json:"batch_id,omitempty"`
	Status  model.SubmissionStatus `json:"status,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
}

// Store persists one current SubmissionResult per form entry.
type Store interface {
	// Save upserts result keyed by FormEntryID and tags it with batchID.
	// Every field of an existing record is overwritten; created_at is kept.
	Save(ctx context.Context, result model.SubmissionResult, batchID string) error
	// SaveMany upserts results keeping each record's own BatchID.
	SaveMany(ctx context.Context, results []model.SubmissionResult) (int64, error)
	// Get returns the record for formEntryID, or nil if none exists.
	Get(ctx context.Context, formEntryID string) (*model.SubmissionResult, error)

	// ProcessedIDs returns entries whose status needs no further work.
	ProcessedIDs(ctx context.Context) (map[string]struct{}, error)
	// FailedIDs returns failed entries with retry_count < maxRetries in
	// creation order.
	FailedIDs(ctx context.Context, maxRetries int) ([]string, error)

	All(ctx context.Context, filter ResultFilter) ([]model.SubmissionResult, error)
	Statistics(ctx context.Context, batchID string) (*model.Statistics, error)
	ClearBatch(ctx context.Context, batchID string) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// submissionColumns lists persisted result columns in insert order.
var submissionColumns = []string{
	"form_entry_id",
	"batch_id",
	"census_id",
	"municipality",
	"state",
	"url",
	"form_type",
	"status",
	"failure_reason",
	"confidence",
	"confirmation_number",
	"confirmation_message",
	"pdf_downloaded_path",
	"pdf_filled_path",
	"error_message",
	"agent_output",
	"retry_count",
	"started_at",
	"completed_at",
	"created_at",
	"updated_at",
}

// Columns returns the persisted column names in table order.
func Columns() []string {
	return append([]string(nil), submissionColumns...)
}
