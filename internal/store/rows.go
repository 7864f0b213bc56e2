package store

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/records-cli/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

// submissionArgs returns insert arguments in submissionColumns order.
// Zero start/completion times are stored as NULL.
func submissionArgs(r model.SubmissionResult, batchID string, createdAt, updatedAt time.Time) []any {
	return []any{
		r.FormEntryID,
		batchID,
		r.CensusID,
		r.Municipality,
		r.State,
		r.URL,
		r.FormType,
		string(r.Status),
		string(defaultReason(r.FailureReason)),
		string(defaultConfidence(r.Confidence)),
		r.ConfirmationNumber,
		r.ConfirmationMessage,
		r.PDFDownloadedPath,
		r.PDFFilledPath,
		r.ErrorMessage,
		model.TruncateOutput(r.AgentOutput),
		r.RetryCount,
		nullableTime(r.StartedAt),
		nullableTime(r.CompletedAt),
		createdAt.UTC(),
		updatedAt.UTC(),
	}
}

func scanSubmission(row scannable) (*model.SubmissionResult, error) {
	var (
		r                      model.SubmissionResult
		status, reason, conf   string
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&r.FormEntryID,
		&r.BatchID,
		&r.CensusID,
		&r.Municipality,
		&r.State,
		&r.URL,
		&r.FormType,
		&status,
		&reason,
		&conf,
		&r.ConfirmationNumber,
		&r.ConfirmationMessage,
		&r.PDFDownloadedPath,
		&r.PDFFilledPath,
		&r.ErrorMessage,
		&r.AgentOutput,
		&r.RetryCount,
		&startedAt,
		&completedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "scan submission")
	}
	r.Status = model.SubmissionStatus(status)
	r.FailureReason = model.FailureReason(reason)
	r.Confidence = model.Confidence(conf)
	if startedAt.Valid {
		r.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return &r, nil
}

// importTimes keeps the source record's timestamps when copying between
// stores.
func importTimes(r model.SubmissionResult, now time.Time) (time.Time, time.Time) {
	created, updated := r.CreatedAt, r.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	return created, updated
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func defaultReason(r model.FailureReason) model.FailureReason {
	if r == "" {
		return model.FailureNone
	}
	return r
}

func defaultConfidence(c model.Confidence) model.Confidence {
	if c == "" {
		return model.ConfidenceUnknown
	}
	return c
}
