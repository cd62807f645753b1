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
)

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"student_id", "package_label", "full_name", "category", "mobile_account", "secondary_account", "tertiary_account", "package_expiry", "imported_at", "updated_at"})
}

func TestStudentRepositoryGet(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := studentRows().
		AddRow("S100", "monthly", "Chen Wei", "undergrad", "A1", nil, nil, time.Now(), time.Now(), time.Now())
	mock.ExpectQuery("SELECT student_id, package_label, full_name, category, mobile_account").
		WithArgs("S100").
		WillReturnRows(rows)

	entry, err := repo.Get(context.Background(), db, "S100")
	require.NoError(t, err)
	assert.Equal(t, "Chen Wei", entry.FullName)
	require.NotNil(t, entry.MobileAccount)
	assert.Equal(t, "A1", *entry.MobileAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT student_id, package_label").
		WithArgs("S404").
		WillReturnRows(studentRows())

	_, err := repo.Get(context.Background(), db, "S404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStudentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM student_entries WHERE student_id = $1)")).
		WithArgs("S100").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := repo.Exists(context.Background(), db, "S100")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryClearMobileAccountMatchesBothSides(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE student_id = $1 AND mobile_account = $2")).
		WithArgs("S100", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.ClearMobileAccount(context.Background(), db, "S100", "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryClearOtherMobileRefs(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE mobile_account = $1 AND student_id <> $2")).
		WithArgs("A1", "S100").
		WillReturnResult(sqlmock.NewResult(0, 2))

	rows, err := repo.ClearOtherMobileRefs(context.Background(), db, "A1", "S100")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindDuplicateAccountIDs(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("HAVING COUNT\\(\\*\\) > 1").
		WillReturnRows(sqlmock.NewRows([]string{"mobile_account"}).AddRow("A1").AddRow("A7"))

	ids, err := repo.FindDuplicateAccountIDs(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A7"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryApplyBindingScrubsOtherCarriers(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	expiry := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE student_entries
SET mobile_account = $1, package_label = $2, package_expiry = $3,
    secondary_account = NULL, tertiary_account = NULL, updated_at = NOW()
WHERE student_id = $4`)).
		WithArgs("A1", "monthly", expiry, "S100").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.ApplyBinding(context.Background(), db, "S100", "A1", "monthly", &expiry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryMarkExpiredPackages(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	// Label travels as a bind parameter; blank-label rows are guarded out.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE student_entries
SET package_label = $1, updated_at = NOW()
WHERE package_expiry < CURRENT_DATE
  AND package_label IS NOT NULL
  AND package_label <> ''
  AND package_label <> $1`)).
		WithArgs("EXPIRED").
		WillReturnResult(sqlmock.NewResult(0, 4))

	marked, err := repo.MarkExpiredPackages(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(4), marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
