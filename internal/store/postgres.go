package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/records-cli/internal/db"
	"github.com/sells-group/records-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// A batch run holds at most one connection; the server may hold a few.
	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id                   BIGSERIAL PRIMARY KEY,
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
	started_at           TIMESTAMPTZ,
	completed_at         TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_batch_id ON submissions(batch_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
`

var (
	postgresUpsertCfg = db.UpsertConfig{
		Table:        "submissions",
		Columns:      submissionColumns,
		ConflictKeys: []string{"form_entry_id"},
		UpdateCols:   updatableColumns(),
	}
	postgresSelect = `SELECT ` + strings.Join(submissionColumns, ", ") + ` FROM submissions`
)

func updatableColumns() []string {
	var cols []string
	for _, c := range submissionColumns {
		if c != "form_entry_id" && c != "created_at" {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, result model.SubmissionResult, batchID string) error {
	if result.FormEntryID == "" {
		return eris.New("postgres: save submission: empty form_entry_id")
	}
	query, err := db.UpsertSQL(postgresUpsertCfg)
	if err != nil {
		return eris.Wrap(err, "postgres: build upsert")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, query, submissionArgs(result, batchID, now, now)...)
	return eris.Wrapf(err, "postgres: upsert submission %s", result.FormEntryID)
}

func (s *PostgresStore) SaveMany(ctx context.Context, results []model.SubmissionResult) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		if r.FormEntryID == "" {
			return 0, eris.New("postgres: save submissions: empty form_entry_id")
		}
		created, updated := importTimes(r, now)
		rows = append(rows, submissionArgs(r, r.BatchID, created, updated))
	}
	n, err := db.BulkUpsert(ctx, s.pool, postgresUpsertCfg, rows)
	return n, eris.Wrap(err, "postgres: save submissions")
}

func (s *PostgresStore) Get(ctx context.Context, formEntryID string) (*model.SubmissionResult, error) {
	row := s.pool.QueryRow(ctx, postgresSelect+` WHERE form_entry_id = $1`, formEntryID)
	r, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", formEntryID)
	}
	return r, nil
}

func (s *PostgresStore) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	statuses := make([]string, len(model.ProcessedStatuses))
	for i, st := range model.ProcessedStatuses {
		statuses[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT form_entry_id FROM submissions WHERE status = ANY($1)`, statuses)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: processed ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processed id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: processed ids iterate")
}

func (s *PostgresStore) FailedIDs(ctx context.Context, maxRetries int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT form_entry_id FROM submissions WHERE status = $1 AND retry_count < $2 ORDER BY created_at, id`,
		string(model.StatusFailed), maxRetries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: failed ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: failed ids iterate")
}

func (s *PostgresStore) All(ctx context.Context, filter ResultFilter) ([]model.SubmissionResult, error) {
	query := postgresSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var out []model.SubmissionResult
	for rows.Next() {
		r, err := scanSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list submissions")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) Statistics(ctx context.Context, batchID string) (*model.Statistics, error) {
	stats := model.NewStatistics()

	// $1 = '' disables the batch filter.
	rows, err := s.pool.Query(ctx,
		`SELECT status, failure_reason, COUNT(*) FROM submissions
		 WHERE ($1 = '' OR batch_id = $1)
		 GROUP BY status, failure_reason`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: statistics")
	}
	defer rows.Close()

	for rows.Next() {
		var status, reason string
		var n int
		if err := rows.Scan(&status, &reason, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan statistics")
		}
		st := model.SubmissionStatus(status)
		stats.ByStatus[st] += n
		stats.Total += n
		if st == model.StatusFailed {
			stats.ByFailureReason[model.FailureReason(reason)] += n
		}
	}
	return stats, eris.Wrap(rows.Err(), "postgres: statistics iterate")
}

func (s *PostgresStore) ClearBatch(ctx context.Context, batchID string) (int, error) {
	if batchID == "" {
		return 0, eris.New("postgres: clear batch: empty batch id")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE batch_id = $1`, batchID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear batch %s", batchID)
	}
	return int(tag.RowsAffected()), nil
}
