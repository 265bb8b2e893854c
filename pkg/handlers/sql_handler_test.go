package handlers

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQL(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLResultHandler_SQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	h, err := NewSQLResultHandler(db, "")
	require.NoError(t, err)
	require.NoError(t, h.EnsureTable(ctx))

	require.NoError(t, h.Handle(ctx, sampleResults()))

	// Re-delivering the same job updates rows instead of duplicating them.
	again := models.NewBatchResults("job-7")
	again.Entries["c"] = models.ResultEntry{CustomID: "c", Value: true}
	require.NoError(t, h.Handle(ctx, again))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_results WHERE job_name = 'job-7'`).Scan(&count))
	assert.Equal(t, 3, count)

	var value, errMsg sql.NullString
	require.NoError(t, db.QueryRowContext(ctx, `SELECT value, error FROM batch_results WHERE custom_id = 'c'`).Scan(&value, &errMsg))
	assert.Equal(t, "true", value.String)
	assert.False(t, errMsg.Valid)

	require.NoError(t, db.QueryRowContext(ctx, `SELECT value FROM batch_results WHERE custom_id = 'a'`).Scan(&value))
	assert.Equal(t, "label:FRUIT", value.String)
}

func TestSQLResultHandler_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h, err := NewSQLResultHandler(db, "results")
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO results").
		WithArgs("job-7", "a", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("job-7", "b", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = h.Handle(context.Background(), sampleResults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-7/b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLResultHandler_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h, err := NewSQLResultHandler(db, "results")
	require.NoError(t, err)

	r := models.NewBatchResults("j")
	r.Entries["x"] = models.ResultEntry{CustomID: "x", Value: "FRUIT"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO results").
		WithArgs("j", "x", "FRUIT", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, h.Handle(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLResultHandler_RejectsBadTable(t *testing.T) {
	_, err := NewSQLResultHandler(nil, "results; DROP TABLE x")
	assert.Error(t, err)
}

func TestDriverName(t *testing.T) {
	name, err := DriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)
	name, err = DriverName("SQLite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", name)
	_, err = DriverName("mysql")
	assert.Error(t, err)
}
