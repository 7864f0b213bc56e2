package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/records-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	form_entry_id        TEXT NOT NULL UNIQUE,
	batch_id             TEXT NOT NULL DEFAULT '',
	census_id            TEXT NOT NULL DEFAULT '',
	municipality         TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT '',
	url                  TEXT NOT NULL DEFAULT '',
	form_type            TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	failure_reason       TEXT NOT NULL DEFAULT 'none',
	confidence           TEXT NOT NULL DEFAULT 'unknown',
	confirmation_number  TEXT NOT NULL DEFAULT '',
	confirmation_message TEXT NOT NULL DEFAULT '',
	pdf_downloaded_path  TEXT NOT NULL DEFAULT '',
	pdf_filled_path      TEXT NOT NULL DEFAULT '',
	error_message        TEXT NOT NULL DEFAULT '',
	agent_output         TEXT NOT NULL DEFAULT '',
	retry_count          INTEGER NOT NULL DEFAULT 0,
	started_at           DATETIME,
	completed_at         DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_batch_id ON submissions(batch_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
`

var (
	sqliteSelect = `SELECT ` + strings.Join(submissionColumns, ", ") + ` FROM submissions`
	sqliteUpsert = buildSQLiteUpsert()
)

// buildSQLiteUpsert overwrites every column except the key and created_at.
func buildSQLiteUpsert() string {
	params := make([]string, len(submissionColumns))
	var sets []string
	for i, col := range submissionColumns {
		params[i] = "?"
		if col == "form_entry_id" || col == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	return fmt.Sprintf(
		"INSERT INTO submissions (%s) VALUES (%s) ON CONFLICT(form_entry_id) DO UPDATE SET %s",
		strings.Join(submissionColumns, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "),
	)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, result model.SubmissionResult, batchID string) error {
	if result.FormEntryID == "" {
		return eris.New("sqlite: save submission: empty form_entry_id")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, sqliteUpsert, submissionArgs(result, batchID, now, now)...)
	return eris.Wrapf(err, "sqlite: upsert submission %s", result.FormEntryID)
}

func (s *SQLiteStore) SaveMany(ctx context.Context, results []model.SubmissionResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, r := range results {
		if r.FormEntryID == "" {
			return 0, eris.New("sqlite: save submissions: empty form_entry_id")
		}
		created, updated := importTimes(r, now)
		if _, err := stmt.ExecContext(ctx, submissionArgs(r, r.BatchID, created, updated)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert submission %s", r.FormEntryID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, formEntryID string) (*model.SubmissionResult, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE form_entry_id = ?`, formEntryID)
	r, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", formEntryID)
	}
	return r, nil
}

func (s *SQLiteStore) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	placeholders := make([]string, len(model.ProcessedStatuses))
	args := make([]any, len(model.ProcessedStatuses))
	for i, st := range model.ProcessedStatuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT form_entry_id FROM submissions WHERE status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: processed ids")
	}
	defer rows.Close() //nolint:errcheck

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processed id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: processed ids iterate")
}

func (s *SQLiteStore) FailedIDs(ctx context.Context, maxRetries int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT form_entry_id FROM submissions WHERE status = ? AND retry_count < ? ORDER BY created_at, id`,
		string(model.StatusFailed), maxRetries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: failed ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: failed ids iterate")
}

func (s *SQLiteStore) All(ctx context.Context, filter ResultFilter) ([]model.SubmissionResult, error) {
	query := sqliteSelect + ` WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SubmissionResult
	for rows.Next() {
		r, err := scanSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list submissions")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) Statistics(ctx context.Context, batchID string) (*model.Statistics, error) {
	stats := model.NewStatistics()

	where, args := "", []any{}
	if batchID != "" {
		where, args = ` WHERE batch_id = ?`, append(args, batchID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM submissions`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.ByStatus[model.SubmissionStatus(status)] = n
		stats.Total += n
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status iterate")
	}

	failedWhere := ` WHERE status = ?`
	failedArgs := []any{string(model.StatusFailed)}
	if batchID != "" {
		failedWhere += ` AND batch_id = ?`
		failedArgs = append(failedArgs, batchID)
	}
	rows, err = s.db.QueryContext(ctx,
		`SELECT failure_reason, COUNT(*) FROM submissions`+failedWhere+` GROUP BY failure_reason`, failedArgs...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by failure reason")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reason count")
		}
		stats.ByFailureReason[model.FailureReason(reason)] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: count by failure reason iterate")
}

func (s *SQLiteStore) ClearBatch(ctx context.Context, batchID string) (int, error) {
	if batchID == "" {
		return 0, eris.New("sqlite: clear batch: empty batch id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear batch %s", batchID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
