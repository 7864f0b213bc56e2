package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Save_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	args := anyArgs(len(submissionColumns))
	args[0] = "174540_1"
	args[1] = "batch-1"

	mock.ExpectExec(`INSERT INTO "submissions" .* ON CONFLICT \("form_entry_id"\) DO UPDATE SET`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Save(context.Background(), testResult("174540_1", model.StatusSuccess), "batch-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "submissions"`).
		WithArgs(anyArgs(len(submissionColumns))...).
		WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), testResult("174540_1", model.StatusSuccess), "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert submission 174540_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT form_entry_id, .* FROM submissions WHERE form_entry_id = \$1`).
		WithArgs("missing_1").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), "missing_1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProcessedIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT form_entry_id FROM submissions WHERE status = ANY\(\$1\)`).
		WithArgs([]string{"success", "email_sent", "skipped"}).
		WillReturnRows(pgxmock.NewRows([]string{"form_entry_id"}).
			AddRow("174540_1").
			AddRow("062807_1"))

	ids, err := s.ProcessedIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "062807_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailedIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT form_entry_id FROM submissions WHERE status = \$1 AND retry_count < \$2`).
		WithArgs("failed", 3).
		WillReturnRows(pgxmock.NewRows([]string{"form_entry_id"}).AddRow("200001_1"))

	ids, err := s.FailedIDs(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"200001_1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Statistics(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, failure_reason, COUNT\(\*\) FROM submissions`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "failure_reason", "count"}).
			AddRow("success", "none", 3).
			AddRow("failed", "timeout", 2).
			AddRow("failed", "network_error", 1).
			AddRow("captcha_blocked", "captcha", 1))

	stats, err := s.Statistics(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[model.StatusSuccess])
	assert.Equal(t, 3, stats.ByStatus[model.StatusFailed])
	assert.Equal(t, map[model.FailureReason]int{
		model.FailureTimeout:      2,
		model.FailureNetworkError: 1,
	}, stats.ByFailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM submissions WHERE batch_id = \$1`).
		WithArgs("b1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.ClearBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveMany_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_submissions"}, submissionColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "submissions" .* SELECT .* ON CONFLICT`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	a := testResult("600001_1", model.StatusSuccess)
	a.BatchID = "x1"
	b := testResult("600002_1", model.StatusFailed)
	b.BatchID = "x2"

	n, err := s.SaveMany(context.Background(), []model.SubmissionResult{a, b})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS submissions`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
