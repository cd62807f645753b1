package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	"github.com/noah-isme/campus-net-api/pkg/config"
)

type poolStoreStub struct {
	upserted []models.Account
	byType   []models.Account
	patches  map[string]models.AccountPatch
}

func (s *poolStoreStub) Get(context.Context, string) (*models.AccountDetail, error) {
	return nil, sql.ErrNoRows
}

func (s *poolStoreStub) Search(context.Context, models.AccountFilter) ([]models.AccountDetail, error) {
	return nil, nil
}

func (s *poolStoreStub) GetAvailable(context.Context, int) ([]models.Account, error) {
	return nil, nil
}

func (s *poolStoreStub) BulkUpsert(_ context.Context, accounts []models.Account) (int64, error) {
	s.upserted = accounts
	return int64(len(accounts)), nil
}

func (s *poolStoreStub) ListByType(context.Context, string) ([]models.Account, error) {
	return s.byType, nil
}

func (s *poolStoreStub) ReleaseOrphanBindings(context.Context, sqlx.ExtContext) (int64, error) {
	return 0, nil
}

func (s *poolStoreStub) ClearStaleUnused(context.Context, sqlx.ExtContext) (int64, error) {
	return 0, nil
}

func (s *poolStoreStub) ResetUnboundUsed(context.Context, sqlx.ExtContext) (int64, error) {
	return 0, nil
}

func (s *poolStoreStub) Find(context.Context, sqlx.ExtContext, string) (*models.Account, error) {
	return nil, sql.ErrNoRows
}

func (s *poolStoreStub) NextAvailable(context.Context, sqlx.ExtContext) (*models.Account, error) {
	return nil, sql.ErrNoRows
}

func (s *poolStoreStub) Apply(_ context.Context, _ sqlx.ExtContext, id string, patch models.AccountPatch) (int64, error) {
	if s.patches == nil {
		s.patches = map[string]models.AccountPatch{}
	}
	s.patches[id] = patch
	return 1, nil
}

type rosterStoreStub struct{}

func (rosterStoreStub) BulkUpsert(context.Context, []models.StudentEntry) (int64, error) {
	return 0, nil
}

func (rosterStoreStub) Search(context.Context, string, int) ([]models.StudentEntry, error) {
	return nil, nil
}

func newTestAccountService(db *sqlx.DB, pool *poolStoreStub, settings *settingStoreStub) *AccountService {
	rules := NewRuleService(&ruleStoreStub{}, nil)
	return NewAccountService(db, pool, rosterStoreStub{}, rules,
		&changeLogRecorder{}, nil, &opStoreStub{}, settings, nil, nil,
		config.ZeroCostConfig{TypeLabel: "ZERO_COST"}, "system", nil)
}

func TestAccountImportDedupeKeepsNewestCohort(t *testing.T) {
	pool := &poolStoreStub{}
	svc := newTestAccountService(nil, pool, &settingStoreStub{})

	summary, err := svc.ImportAccounts(context.Background(), dto.ImportAccountsRequest{Rows: []dto.AccountImportRow{
		{ID: "X", AccountType: "202309"},
		{ID: "X", AccountType: "202409"},
		{ID: "X", AccountType: "202109"},
		// newest-first arrival: the older label must not displace it
		{ID: "Y", AccountType: "202506"},
		{ID: "Y", AccountType: "202406"},
	}})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.SourceRows)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 2, summary.Processed)

	require.Len(t, pool.upserted, 2)
	assert.Equal(t, "X", pool.upserted[0].ID)
	assert.Equal(t, "202409", pool.upserted[0].AccountType)
	require.NotNil(t, pool.upserted[0].LifecycleEnd)
	assert.Equal(t, "2025-09-01", pool.upserted[0].LifecycleEnd.Format(models.DateOnly))
	assert.Equal(t, "202506", pool.upserted[1].AccountType)
}

func TestAccountImportZeroCostPolicy(t *testing.T) {
	pool := &poolStoreStub{}
	settings := &settingStoreStub{values: map[string]string{
		models.SettingZeroCostEnabled: "true",
		models.SettingZeroCostExpiry:  "2099-06-30",
	}}
	svc := newTestAccountService(nil, pool, settings)

	summary, err := svc.ImportAccounts(context.Background(), dto.ImportAccountsRequest{Rows: []dto.AccountImportRow{
		{ID: "Z1", AccountType: "ZERO_COST"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	require.Len(t, pool.upserted, 1)
	assert.Nil(t, pool.upserted[0].LifecycleStart)
	require.NotNil(t, pool.upserted[0].LifecycleEnd)
	assert.Equal(t, "2099-06-30", pool.upserted[0].LifecycleEnd.Format(models.DateOnly))
	assert.Equal(t, models.AccountStatusUnused, pool.upserted[0].Status)
}

func TestAccountImportZeroCostLapsedExpirySuspends(t *testing.T) {
	pool := &poolStoreStub{}
	settings := &settingStoreStub{values: map[string]string{
		models.SettingZeroCostEnabled: "true",
		models.SettingZeroCostExpiry:  "2001-01-01",
	}}
	svc := newTestAccountService(nil, pool, settings)

	_, err := svc.ImportAccounts(context.Background(), dto.ImportAccountsRequest{Rows: []dto.AccountImportRow{
		{ID: "Z1", AccountType: "ZERO_COST"},
	}})
	require.NoError(t, err)

	require.Len(t, pool.upserted, 1)
	assert.Equal(t, models.AccountStatusSuspended, pool.upserted[0].Status)
}

func TestAccountImportZeroCostDisabledLeavesOpenWindow(t *testing.T) {
	pool := &poolStoreStub{}
	settings := &settingStoreStub{values: map[string]string{
		models.SettingZeroCostExpiry: "2099-06-30",
	}}
	svc := newTestAccountService(nil, pool, settings)

	_, err := svc.ImportAccounts(context.Background(), dto.ImportAccountsRequest{Rows: []dto.AccountImportRow{
		{ID: "Z1", AccountType: "ZERO_COST"},
	}})
	require.NoError(t, err)

	require.Len(t, pool.upserted, 1)
	assert.Nil(t, pool.upserted[0].LifecycleEnd)
	assert.Equal(t, models.AccountStatusUnused, pool.upserted[0].Status)
}

func TestRecalculateLifecycleRepartitionsStatus(t *testing.T) {
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "sqlmock")

	s1, s2 := "S1", "S2"
	running := time.Date(2099, 1, 1, 0, 0, 0, 0, time.Local)
	lapsed := time.Date(2001, 1, 1, 0, 0, 0, 0, time.Local)
	pool := &poolStoreStub{byType: []models.Account{
		{ID: "A1", AccountType: "202009", Status: models.AccountStatusUsed, BoundStudentID: &s1, BoundPackageExpiry: &running},
		{ID: "A2", AccountType: "202009", Status: models.AccountStatusUsed, BoundStudentID: &s2, BoundPackageExpiry: &lapsed},
		{ID: "A3", AccountType: "202009", Status: models.AccountStatusUnused},
	}}
	svc := newTestAccountService(db, pool, &settingStoreStub{})

	mock.ExpectBegin()
	mock.ExpectCommit()

	changed, err := svc.RecalculateLifecycle(context.Background(), dto.RecalculateRequest{AccountType: "202009"})
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	assert.NoError(t, mock.ExpectationsWereMet())

	// window [2020-09-01, 2021-09-01) is long closed: the account with a
	// running package earns grace, the others expire outright
	require.NotNil(t, pool.patches["A1"].Status)
	assert.Equal(t, models.AccountStatusExpiredBound, *pool.patches["A1"].Status)
	require.NotNil(t, pool.patches["A2"].Status)
	assert.Equal(t, models.AccountStatusExpired, *pool.patches["A2"].Status)
	require.NotNil(t, pool.patches["A3"].Status)
	assert.Equal(t, models.AccountStatusExpired, *pool.patches["A3"].Status)
	require.NotNil(t, pool.patches["A1"].LifecycleEnd)
	assert.Equal(t, "2021-09-01", *pool.patches["A1"].LifecycleEnd)
}

func TestRecalculateLifecycleZeroCostReopensWindow(t *testing.T) {
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer rawDB.Close()
	db := sqlx.NewDb(rawDB, "sqlmock")

	s1 := "S1"
	pool := &poolStoreStub{byType: []models.Account{
		{ID: "B1", AccountType: "ZERO_COST", Status: models.AccountStatusSuspended, BoundStudentID: &s1},
		{ID: "B2", AccountType: "ZERO_COST", Status: models.AccountStatusSuspended},
	}}
	settings := &settingStoreStub{values: map[string]string{
		models.SettingZeroCostEnabled: "true",
		models.SettingZeroCostExpiry:  "2099-06-30",
	}}
	svc := newTestAccountService(db, pool, settings)

	mock.ExpectBegin()
	mock.ExpectCommit()

	changed, err := svc.RecalculateLifecycle(context.Background(), dto.RecalculateRequest{AccountType: "ZERO_COST"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, pool.patches["B1"].Status)
	assert.Equal(t, models.AccountStatusUsed, *pool.patches["B1"].Status)
	require.NotNil(t, pool.patches["B2"].Status)
	assert.Equal(t, models.AccountStatusUnused, *pool.patches["B2"].Status)
	require.NotNil(t, pool.patches["B1"].LifecycleEnd)
	assert.Equal(t, "2099-06-30", *pool.patches["B1"].LifecycleEnd)
}
