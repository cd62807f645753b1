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
	"github.com/noah-isme/campus-net-api/pkg/config"
)

type paymentStoreStub struct {
	inserted  []models.Payment
	pending   []models.Payment
	processed []int64
	failed    map[int64]string
	reset     int64
}

func (s *paymentStoreStub) BulkInsert(_ context.Context, payments []models.Payment) (int64, error) {
	s.inserted = append(s.inserted, payments...)
	return int64(len(payments)), nil
}

func (s *paymentStoreStub) ListByStatus(_ context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	if status == models.PaymentStatusPending {
		return s.pending, nil
	}
	return nil, nil
}

func (s *paymentStoreStub) MarkProcessed(_ context.Context, _ sqlx.ExtContext, id int64) error {
	s.processed = append(s.processed, id)
	return nil
}

func (s *paymentStoreStub) MarkFailed(_ context.Context, id int64, reason string) error {
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = reason
	return nil
}

func (s *paymentStoreStub) ResetFailed(context.Context) (int64, error) { return s.reset, nil }

type settingStoreStub struct {
	times  map[string]time.Time
	values map[string]string
}

func (s *settingStoreStub) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *settingStoreStub) GetTime(_ context.Context, key string) (*time.Time, error) {
	if t, ok := s.times[key]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *settingStoreStub) SetTime(_ context.Context, key string, value time.Time) error {
	if s.times == nil {
		s.times = map[string]time.Time{}
	}
	s.times[key] = value
	return nil
}

type opStoreStub struct {
	lastType   string
	lastStatus models.OperationStatus
	affected   int
}

func (s *opStoreStub) Start(_ context.Context, operationType, _ string, _ *string) (int64, error) {
	s.lastType = operationType
	return 1, nil
}

func (s *opStoreStub) Complete(_ context.Context, _ int64, status models.OperationStatus, affected int, _ interface{}) error {
	s.lastStatus = status
	s.affected = affected
	return nil
}

func newTestPaymentService(payments *paymentStoreStub, settings *settingStoreStub, ops *opStoreStub) *PaymentService {
	cfg := config.BindingConfig{Operator: "system", MonthlyAmount: 30, YearlyAmount: 300}
	return NewPaymentService(nil, payments, nil, nil, &changeLogRecorder{}, ops, settings, nil, nil, nil, cfg, nil)
}

func TestPaymentServiceImportSkipsReplayedRows(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	payments := &paymentStoreStub{}
	settings := &settingStoreStub{times: map[string]time.Time{models.SettingLastPaymentImport: cutoff}}
	ops := &opStoreStub{}
	svc := newTestPaymentService(payments, settings, ops)

	summary, err := svc.Import(context.Background(), dto.ImportPaymentsRequest{Rows: []dto.PaymentRow{
		{StudentID: "S1", PaidAt: cutoff.Add(-time.Hour), Amount: 30},
		{StudentID: "S2", PaidAt: cutoff, Amount: 30},
		{StudentID: "S3", PaidAt: cutoff.Add(time.Hour), Amount: 300},
	}})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.SourceRows)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, payments.inserted, 1)
	assert.Equal(t, "S3", payments.inserted[0].StudentID)

	// cutoff advances to the newest accepted payment
	assert.Equal(t, cutoff.Add(time.Hour), settings.times[models.SettingLastPaymentImport])
	assert.Equal(t, models.OperationPaymentImport, ops.lastType)
	assert.Equal(t, models.OperationStatusSuccess, ops.lastStatus)
}

func TestPaymentServiceImportFirstRun(t *testing.T) {
	payments := &paymentStoreStub{}
	settings := &settingStoreStub{}
	svc := newTestPaymentService(payments, settings, &opStoreStub{})

	paidAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	summary, err := svc.Import(context.Background(), dto.ImportPaymentsRequest{Rows: []dto.PaymentRow{
		{StudentID: "S1", PaidAt: paidAt, Amount: 30},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Skipped)
	assert.Equal(t, paidAt, settings.times[models.SettingLastPaymentImport])
}

// Settling a payment onto an account must leave the payer as the only roster
// entry referencing it, even when a stale row from an earlier binding still
// points there.
func TestPaymentServiceSettleScrubsStaleRosterRefs(t *testing.T) {
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "sqlmock")

	paidAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	payments := &paymentStoreStub{pending: []models.Payment{{ID: 11, StudentID: "S2", PaidAt: paidAt, Amount: 30}}}
	ops := &opStoreStub{}
	changes := &changeLogRecorder{}
	cfg := config.BindingConfig{Operator: "system", MonthlyAmount: 30, YearlyAmount: 300}
	svc := NewPaymentService(db, payments,
		repository.NewStudentRepository(db),
		repository.NewAccountRepository(db),
		changes, ops, &settingStoreStub{}, nil, nil, nil, cfg, nil)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT student_id, package_label, full_name, category, mobile_account").
		WithArgs("S2").
		WillReturnRows(sweepStudentRows().
			AddRow("S2", nil, "Li Na", "undergrad", nil, nil, nil, nil, now, now))
	mock.ExpectQuery("WHERE a.status = 'UNUSED'").
		WillReturnRows(engineAccountRows().
			AddRow("A100", "202409", "UNUSED", nil, nil, nil, nil, now, now))
	// the stale roster row still pointing at A100 is scrubbed inside the
	// settle transaction
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE mobile_account = $1 AND student_id <> $2")).
		WithArgs("A100", "S2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE isp_accounts SET status = $1, bound_student_id = $2, bound_package_expiry = $3, updated_at = NOW() WHERE id = $4")).
		WithArgs("USED", "S2", "2025-04-10", "A100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE student_entries
SET mobile_account = $1, package_label = $2, package_expiry = $3,
    secondary_account = NULL, tertiary_account = NULL, updated_at = NOW()
WHERE student_id = $4`)).
		WithArgs("A100", "monthly", paidAt.AddDate(0, 1, 0), "S2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Failed)
	require.Len(t, result.Bindings, 1)
	assert.Equal(t, "A100", result.Bindings[0].AccountID)
	assert.Equal(t, []int64{11}, payments.processed)
	assert.Equal(t, models.OperationStatusSuccess, ops.lastStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
