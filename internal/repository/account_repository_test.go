package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/models"
)

func newAccountMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account_type", "status", "lifecycle_start", "lifecycle_end", "bound_student_id", "bound_package_expiry", "created_at", "updated_at"})
}

func TestAccountRepositoryGet(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows := sqlmock.NewRows([]string{"id", "account_type", "status", "lifecycle_start", "lifecycle_end", "bound_student_id", "bound_package_expiry", "created_at", "updated_at", "student_name"}).
		AddRow("202409001", "202409", "USED", time.Now(), time.Now(), "S100", time.Now(), time.Now(), time.Now(), "Chen Wei")
	mock.ExpectQuery("SELECT a.id, a.account_type, a.status, a.lifecycle_start, a.lifecycle_end,").
		WithArgs("202409001").
		WillReturnRows(rows)

	detail, err := repo.Get(context.Background(), "202409001")
	require.NoError(t, err)
	assert.Equal(t, "202409001", detail.ID)
	require.NotNil(t, detail.StudentName)
	assert.Equal(t, "Chen Wei", *detail.StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryGetAvailableOrder(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows := accountRows().
		AddRow("A1", "202409", "UNUSED", nil, nil, nil, nil, time.Now().Add(-time.Hour), time.Now()).
		AddRow("A2", "202409", "UNUSED", nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(r.allow_binding, TRUE)")).
		WillReturnRows(rows)

	accounts, err := repo.GetAvailable(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "A1", accounts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryNextAvailableEmpty(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectQuery("WHERE a.status = 'UNUSED'").WillReturnRows(accountRows())

	_, err := repo.NextAvailable(context.Background(), db)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryApplyBindPatch(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	used := models.AccountStatusUsed
	student := "S100"
	expiry := "2025-06-30"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE isp_accounts SET status = $1, bound_student_id = $2, bound_package_expiry = $3, updated_at = NOW() WHERE id = $4")).
		WithArgs("USED", "S100", "2025-06-30", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.Apply(context.Background(), db, "A1", models.AccountPatch{
		Status:             &used,
		BoundStudentID:     &student,
		BoundPackageExpiry: &expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryApplyReleasePatch(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	unused := models.AccountStatusUnused
	mock.ExpectExec(regexp.QuoteMeta("UPDATE isp_accounts SET status = $1, bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW() WHERE id = $2")).
		WithArgs("UNUSED", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.Apply(context.Background(), db, "A1", models.AccountPatch{
		Status:            &unused,
		ClearBoundStudent: true,
		ClearBoundExpiry:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryApplyEmptyPatch(t *testing.T) {
	db, _, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows, err := repo.Apply(context.Background(), db, "A1", models.AccountPatch{})
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestAccountRepositoryListLifecycleEndedPartitionsInSQL(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	// Both partitions compare against CURRENT_DATE so the database clock,
	// not the app server's, decides which side of the split a row lands on.
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lifecycle_end < CURRENT_DATE
  AND status NOT IN ('EXPIRED', 'EXPIRED_BOUND')
  AND (bound_package_expiry IS NULL OR bound_package_expiry < CURRENT_DATE)`)).
		WillReturnRows(accountRows().
			AddRow("A1", "202309", "USED", nil, time.Now().AddDate(0, -1, 0), "S1", nil, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE lifecycle_end < CURRENT_DATE
  AND status NOT IN ('EXPIRED', 'EXPIRED_BOUND')
  AND bound_package_expiry >= CURRENT_DATE`)).
		WillReturnRows(accountRows().
			AddRow("A2", "202309", "USED", nil, time.Now().AddDate(0, -1, 0), "S2", time.Now().AddDate(0, 1, 0), time.Now(), time.Now()))

	expiring, err := repo.ListLifecycleEndedExpiring(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "A1", expiring[0].ID)

	grace, err := repo.ListLifecycleEndedGrace(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, grace, 1)
	assert.Equal(t, "A2", grace[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryReleaseByIDs(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectExec("UPDATE isp_accounts\nSET status = 'UNUSED', bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW\\(\\)").
		WithArgs("A1", "A2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	rows, err := repo.ReleaseByIDs(context.Background(), db, []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryReleaseByIDsEmpty(t *testing.T) {
	db, _, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows, err := repo.ReleaseByIDs(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestAccountRepositoryCountsByStatus(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("UNUSED", 12).
		AddRow("USED", 30)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM isp_accounts GROUP BY status ORDER BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountsByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.AccountStatusUnused, counts[0].Status)
	assert.Equal(t, 12, counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryReleaseOrphanBindings(t *testing.T) {
	db, mock, cleanup := newAccountMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectExec("NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 3))

	rows, err := repo.ReleaseOrphanBindings(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
