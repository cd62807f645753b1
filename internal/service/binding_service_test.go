package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	"github.com/noah-isme/campus-net-api/internal/repository"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

type changeLogRecorder struct {
	entries []models.AccountChangeLog
}

func (r *changeLogRecorder) Append(_ context.Context, entries []models.AccountChangeLog) error {
	r.entries = append(r.entries, entries...)
	return nil
}

type invalidatorSpy struct {
	calls int
}

func (s *invalidatorSpy) Invalidate(context.Context) { s.calls++ }

func newEngineMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func engineAccountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account_type", "status", "lifecycle_start", "lifecycle_end", "bound_student_id", "bound_package_expiry", "created_at", "updated_at"})
}

func newTestEngine(db *sqlx.DB) (*BindingService, *changeLogRecorder, *invalidatorSpy) {
	changes := &changeLogRecorder{}
	stats := &invalidatorSpy{}
	svc := NewBindingService(db, repository.NewAccountRepository(db), repository.NewStudentRepository(db), changes, stats, nil)
	return svc, changes, stats
}

func TestBindingServiceBind(t *testing.T) {
	db, mock, cleanup := newEngineMock(t)
	defer cleanup()
	svc, changes, stats := newTestEngine(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM student_entries WHERE student_id = $1)")).
		WithArgs("S100").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT id, account_type, status, lifecycle_start").
		WithArgs("A1").
		WillReturnRows(engineAccountRows().AddRow("A1", "202409", "UNUSED", nil, nil, nil, nil, time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE mobile_account = $1 AND student_id <> $2")).
		WithArgs("A1", "S100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE isp_accounts SET status = $1, bound_student_id = $2, bound_package_expiry = $3, updated_at = NOW() WHERE id = $4")).
		WithArgs("USED", "S100", "2025-06-30", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = $1, updated_at = NOW() WHERE student_id = $2")).
		WithArgs("A1", "S100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Bind(context.Background(), dto.BindRequest{
		AccountID:     "A1",
		StudentID:     "S100",
		PackageExpiry: "2025-06-30",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, changes.entries, 3)
	assert.Equal(t, models.ChangeTypeBind, changes.entries[0].ChangeType)
	assert.Equal(t, SourceManual, changes.entries[0].Source)
	assert.Equal(t, 1, stats.calls)
}

func TestBindingServiceBindUnknownStudent(t *testing.T) {
	db, mock, cleanup := newEngineMock(t)
	defer cleanup()
	svc, changes, _ := newTestEngine(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("S404").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := svc.Bind(context.Background(), dto.BindRequest{AccountID: "A1", StudentID: "S404"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, changes.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingServiceBindAccountNotFree(t *testing.T) {
	db, mock, cleanup := newEngineMock(t)
	defer cleanup()
	svc, _, _ := newTestEngine(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("S100").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT id, account_type, status").
		WithArgs("A1").
		WillReturnRows(engineAccountRows().AddRow("A1", "202409", "USED", nil, nil, "S200", nil, time.Now(), time.Now()))
	mock.ExpectRollback()

	err := svc.Bind(context.Background(), dto.BindRequest{AccountID: "A1", StudentID: "S100"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingServiceBindBadExpiry(t *testing.T) {
	db, _, cleanup := newEngineMock(t)
	defer cleanup()
	svc, _, _ := newTestEngine(db)

	err := svc.Bind(context.Background(), dto.BindRequest{AccountID: "A1", StudentID: "S100", PackageExpiry: "30-06-2025"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBindingServiceRelease(t *testing.T) {
	db, mock, cleanup := newEngineMock(t)
	defer cleanup()
	svc, changes, stats := newTestEngine(db)

	expiry := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, account_type, status").
		WithArgs("A1").
		WillReturnRows(engineAccountRows().AddRow("A1", "202409", "USED", nil, nil, "S100", expiry, time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE isp_accounts SET status = $1, bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW() WHERE id = $2")).
		WithArgs("UNUSED", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE student_id = $1 AND mobile_account = $2")).
		WithArgs("S100", "A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Release(context.Background(), "A1", dto.ReleaseRequest{Remark: "graduated"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, changes.entries, 3)
	assert.Equal(t, models.ChangeTypeRelease, changes.entries[0].ChangeType)
	require.NotNil(t, changes.entries[0].Remark)
	assert.Equal(t, "graduated", *changes.entries[0].Remark)
	assert.Equal(t, 1, stats.calls)
}

func TestBindingServiceReleaseUnbound(t *testing.T) {
	db, mock, cleanup := newEngineMock(t)
	defer cleanup()
	svc, _, _ := newTestEngine(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, account_type, status").
		WithArgs("A1").
		WillReturnRows(engineAccountRows().AddRow("A1", "202409", "UNUSED", nil, nil, nil, nil, time.Now(), time.Now()))
	mock.ExpectRollback()

	err := svc.Release(context.Background(), "A1", dto.ReleaseRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
