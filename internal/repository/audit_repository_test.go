package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/models"
)

func newAuditMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { _ = sqlxDB.Close() }
}

func TestOperationLogRepositoryStart(t *testing.T) {
	db, mock, cleanup := newAuditMock(t)
	defer cleanup()
	repo := NewOperationLogRepository(db)

	mock.ExpectQuery(`INSERT INTO operation_logs`).
		WithArgs(models.OperationMaintenance, "scheduler", "IN_PROGRESS", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Start(context.Background(), models.OperationMaintenance, "scheduler", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationLogRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newAuditMock(t)
	defer cleanup()
	repo := NewOperationLogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE operation_logs SET status = $1, affected_count = $2, detail = $3 WHERE id = $4`)).
		WithArgs("SUCCESS", 7, []byte(`{"touched":7}`), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Complete(context.Background(), 42, models.OperationStatusSuccess, 7, map[string]int{"touched": 7})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationLogRepositoryRecentFiltered(t *testing.T) {
	db, mock, cleanup := newAuditMock(t)
	defer cleanup()
	repo := NewOperationLogRepository(db)

	rows := sqlmock.NewRows([]string{"id", "operation_type", "operator", "detail", "affected_count", "status", "remark", "created_at"}).
		AddRow(int64(9), models.OperationMaintenance, "scheduler", nil, 3, "SUCCESS", nil, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	mock.ExpectQuery(`SELECT .+ FROM operation_logs WHERE operation_type = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs(models.OperationMaintenance, 50).
		WillReturnRows(rows)

	logs, err := repo.Recent(context.Background(), models.OperationMaintenance, 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(9), logs[0].ID)
	assert.Equal(t, models.OperationStatusSuccess, logs[0].Status)
}

func TestChangeLogRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newAuditMock(t)
	defer cleanup()
	repo := NewChangeLogRepository(db)

	student := "S1"
	oldVal := "UNUSED"
	newVal := "USED"
	entries := []models.AccountChangeLog{{
		AccountID:  "ACC-1",
		ChangeType: models.ChangeTypeBind,
		Field:      "status",
		OldValue:   &oldVal,
		NewValue:   &newVal,
		StudentID:  &student,
		Source:     "manual",
	}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO account_change_logs`).
		WithArgs("ACC-1", models.ChangeTypeBind, "status", &oldVal, &newVal, &student, "manual", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Append(context.Background(), entries))
	assert.False(t, entries[0].ChangedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeLogRepositoryAppendEmpty(t *testing.T) {
	db, mock, cleanup := newAuditMock(t)
	defer cleanup()
	repo := NewChangeLogRepository(db)

	require.NoError(t, repo.Append(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
