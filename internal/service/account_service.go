package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	"github.com/noah-isme/campus-net-api/pkg/config"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

// SourceImport labels import- and repair-originated changes.
const SourceImport = "import"

type accountPoolStore interface {
	accountTxStore
	Get(ctx context.Context, id string) (*models.AccountDetail, error)
	Search(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, error)
	GetAvailable(ctx context.Context, limit int) ([]models.Account, error)
	BulkUpsert(ctx context.Context, accounts []models.Account) (int64, error)
	ListByType(ctx context.Context, accountType string) ([]models.Account, error)
	ReleaseOrphanBindings(ctx context.Context, ext sqlx.ExtContext) (int64, error)
	ClearStaleUnused(ctx context.Context, ext sqlx.ExtContext) (int64, error)
	ResetUnboundUsed(ctx context.Context, ext sqlx.ExtContext) (int64, error)
}

type rosterImportStore interface {
	BulkUpsert(ctx context.Context, entries []models.StudentEntry) (int64, error)
	Search(ctx context.Context, keyword string, limit int) ([]models.StudentEntry, error)
}

type changeLogReader interface {
	History(ctx context.Context, accountID string, limit int) ([]models.AccountChangeLog, error)
}

type accountSettingStore interface {
	maintenanceSettingStore
	Get(ctx context.Context, key string) (string, bool, error)
}

// AccountService covers pool queries, bulk imports, lifecycle recalculation
// and the structural integrity repair.
type AccountService struct {
	db       *sqlx.DB
	accounts accountPoolStore
	students rosterImportStore
	rules    *RuleService
	changes  changeLogAppender
	history  changeLogReader
	ops      operationStore
	settings accountSettingStore
	stats    poolCacheInvalidator
	validate *validator.Validate
	zeroCost config.ZeroCostConfig
	operator string
	logger   *zap.Logger
}

// NewAccountService constructs the account service.
func NewAccountService(
	db *sqlx.DB,
	accounts accountPoolStore,
	students rosterImportStore,
	rules *RuleService,
	changes changeLogAppender,
	history changeLogReader,
	ops operationStore,
	settings accountSettingStore,
	stats poolCacheInvalidator,
	validate *validator.Validate,
	zeroCost config.ZeroCostConfig,
	operator string,
	logger *zap.Logger,
) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AccountService{
		db:       db,
		accounts: accounts,
		students: students,
		rules:    rules,
		changes:  changes,
		history:  history,
		ops:      ops,
		settings: settings,
		stats:    stats,
		validate: validate,
		zeroCost: zeroCost,
		operator: operator,
		logger:   logger,
	}
	_ = svc.validate.RegisterValidation("account_status", func(fl validator.FieldLevel) bool {
		switch models.AccountStatus(fl.Field().String()) {
		case models.AccountStatusUnused, models.AccountStatusUsed,
			models.AccountStatusSuspended, models.AccountStatusExpired,
			models.AccountStatusExpiredBound:
			return true
		default:
			return false
		}
	})
	return svc
}

// Get returns one account with its bound student's name.
func (s *AccountService) Get(ctx context.Context, id string) (*models.AccountDetail, error) {
	detail, err := s.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return detail, nil
}

// Search lists accounts matching the filter.
func (s *AccountService) Search(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, error) {
	accounts, err := s.accounts.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search accounts")
	}
	return accounts, nil
}

// Available lists the bindable free pool in allocation order.
func (s *AccountService) Available(ctx context.Context, limit int) ([]models.Account, error) {
	accounts, err := s.accounts.GetAvailable(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available accounts")
	}
	return accounts, nil
}

// History returns an account's change trail.
func (s *AccountService) History(ctx context.Context, accountID string, limit int) ([]models.AccountChangeLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.history.History(ctx, accountID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account history")
	}
	return entries, nil
}

// SearchStudents looks up roster entries by id or name fragment.
func (s *AccountService) SearchStudents(ctx context.Context, keyword string, limit int) ([]models.StudentEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.students.Search(ctx, keyword, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search roster")
	}
	return entries, nil
}

// ImportAccounts merges an account batch into the pool. Lifecycle windows
// come from the per-type rule; accounts whose window already closed land as
// SUSPENDED instead of entering the free pool. Duplicate ids keep the row
// carrying the newest cohort label.
func (s *AccountService) ImportAccounts(ctx context.Context, req dto.ImportAccountsRequest) (*dto.ImportSummary, error) {
	opID, err := s.ops.Start(ctx, models.OperationAccountImport, s.operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open import batch")
	}

	summary := dto.ImportSummary{SourceRows: len(req.Rows)}
	seen := make(map[string]int, len(req.Rows))
	accounts := make([]models.Account, 0, len(req.Rows))
	today := startOfToday()
	zeroCostEnd := s.zeroCostExpiry(ctx)
	for _, row := range req.Rows {
		if err := s.validate.Struct(row); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", row.ID, err))
			continue
		}

		account, err := s.importedAccount(ctx, row, zeroCostEnd, today)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", row.ID, err))
			continue
		}

		if idx, dup := seen[row.ID]; dup {
			summary.Skipped++
			if NewerCohort(account.AccountType, accounts[idx].AccountType) {
				accounts[idx] = account
			}
			continue
		}
		seen[row.ID] = len(accounts)
		accounts = append(accounts, account)
	}

	if _, err := s.accounts.BulkUpsert(ctx, accounts); err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, dto.OperationDetail{Import: &summary})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store accounts")
	}
	summary.Processed = len(accounts)
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, summary.Processed, dto.OperationDetail{Import: &summary}); err != nil {
		s.logger.Warn("failed to close import batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	s.logger.Info("accounts imported", zap.Int("processed", summary.Processed), zap.Int("skipped", summary.Skipped))
	return &summary, nil
}

// importedAccount builds one pool row from an import record: effective rule,
// lifecycle window (with the zero-cost uniform expiry as the fallback end for
// complimentary accounts) and the derived initial status.
func (s *AccountService) importedAccount(ctx context.Context, row dto.AccountImportRow, zeroCostEnd *time.Time, today time.Time) (models.Account, error) {
	rule, err := s.rules.Resolve(ctx, row.AccountType)
	if err != nil {
		return models.Account{}, err
	}
	var defaultEnd *time.Time
	if row.AccountType == s.zeroCost.TypeLabel {
		defaultEnd = zeroCostEnd
	}
	start, end := ComputeLifecycle(rule, nil, defaultEnd)

	status := models.AccountStatusUnused
	switch {
	case row.Status != "":
		status = models.AccountStatus(row.Status)
	case end != nil && end.Before(today):
		status = models.AccountStatusSuspended
	}

	return models.Account{
		ID:             row.ID,
		AccountType:    row.AccountType,
		Status:         status,
		LifecycleStart: start,
		LifecycleEnd:   end,
	}, nil
}

// zeroCostExpiry resolves the uniform lifecycle end for complimentary
// accounts from the settings table. Nil when the policy is switched off or
// the expiry is unset or unparsable.
func (s *AccountService) zeroCostExpiry(ctx context.Context) *time.Time {
	flag, ok, err := s.settings.Get(ctx, models.SettingZeroCostEnabled)
	if err != nil {
		s.logger.Warn("failed to read zero-cost flag", zap.Error(err))
		return nil
	}
	enabled, _ := strconv.ParseBool(flag)
	if !ok || !enabled {
		return nil
	}

	value, ok, err := s.settings.Get(ctx, models.SettingZeroCostExpiry)
	if err != nil {
		s.logger.Warn("failed to read zero-cost expiry", zap.Error(err))
		return nil
	}
	if !ok || value == "" {
		return nil
	}
	expiry, err := time.ParseInLocation(models.DateOnly, value, time.Local)
	if err != nil {
		s.logger.Warn("unparsable zero-cost expiry setting", zap.String("value", value), zap.Error(err))
		return nil
	}
	return &expiry
}

// ImportStudents merges a roster batch.
func (s *AccountService) ImportStudents(ctx context.Context, req dto.ImportStudentsRequest) (*dto.ImportSummary, error) {
	opID, err := s.ops.Start(ctx, models.OperationRosterImport, s.operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open import batch")
	}

	summary := dto.ImportSummary{SourceRows: len(req.Rows)}
	entries := make([]models.StudentEntry, 0, len(req.Rows))
	seen := make(map[string]struct{}, len(req.Rows))
	for _, row := range req.Rows {
		if err := s.validate.Struct(row); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", row.StudentID, err))
			continue
		}
		if _, dup := seen[row.StudentID]; dup {
			summary.Skipped++
			continue
		}
		seen[row.StudentID] = struct{}{}

		entry := models.StudentEntry{
			StudentID: row.StudentID,
			FullName:  row.FullName,
			Category:  row.Category,
		}
		if row.PackageLabel != "" {
			entry.PackageLabel = &row.PackageLabel
		}
		if row.PackageExpiry != "" {
			expiry, err := time.ParseInLocation(models.DateOnly, row.PackageExpiry, time.Local)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: bad packageExpiry %q", row.StudentID, row.PackageExpiry))
				continue
			}
			entry.PackageExpiry = &expiry
		}
		if row.SecondaryAccount != "" {
			entry.SecondaryAccount = &row.SecondaryAccount
		}
		if row.TertiaryAccount != "" {
			entry.TertiaryAccount = &row.TertiaryAccount
		}
		entries = append(entries, entry)
	}

	if _, err := s.students.BulkUpsert(ctx, entries); err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, dto.OperationDetail{Import: &summary})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store roster")
	}
	summary.Processed = len(entries)
	if err := s.settings.SetTime(ctx, models.SettingLastRosterImport, time.Now()); err != nil {
		s.logger.Warn("failed to record roster import timestamp", zap.Error(err))
	}
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, summary.Processed, dto.OperationDetail{Import: &summary}); err != nil {
		s.logger.Warn("failed to close import batch", zap.Error(err))
	}
	s.logger.Info("roster imported", zap.Int("processed", summary.Processed), zap.Int("skipped", summary.Skipped))
	return &summary, nil
}

// RecalculateLifecycle reapplies the effective rule's lifecycle window to
// every account of one type, then re-derives each account's status from the
// new window: closed windows expire (with a grace state while a paid package
// still runs), open windows map bound accounts to USED and the rest to
// UNUSED.
func (s *AccountService) RecalculateLifecycle(ctx context.Context, req dto.RecalculateRequest) (int, error) {
	rule, err := s.rules.Resolve(ctx, req.AccountType)
	if err != nil {
		return 0, err
	}
	var defaultEnd *time.Time
	if req.AccountType == s.zeroCost.TypeLabel {
		defaultEnd = s.zeroCostExpiry(ctx)
	}
	start, end := ComputeLifecycle(rule, nil, defaultEnd)

	accounts, err := s.accounts.ListByType(ctx, req.AccountType)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	opID, err := s.ops.Start(ctx, models.OperationLifecycleRecalc, s.operator, &req.AccountType)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open recalc batch")
	}
	opCtx := models.OperationContext{Source: SourceManual, OperationID: &opID}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin recalc transaction")
	}
	defer func() { _ = tx.Rollback() }()

	today := startOfToday()
	changed := 0
	var entries []models.AccountChangeLog
	for _, account := range accounts {
		status := repartitionStatus(account, end, today)
		patch := models.AccountPatch{
			Status:              &status,
			LifecycleStart:      models.FormatDate(start),
			ClearLifecycleStart: start == nil,
			LifecycleEnd:        models.FormatDate(end),
			ClearLifecycleEnd:   end == nil,
		}
		changes := patch.Diff(account)
		if len(changes) == 0 {
			continue
		}
		if _, err := s.accounts.Apply(ctx, tx, account.ID, patch); err != nil {
			_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, changed, nil)
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lifecycle")
		}
		entries = append(entries, opCtx.EntriesFor(account.ID, models.ChangeTypeRecalc, changes)...)
		changed++
	}
	if err := tx.Commit(); err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit recalc transaction")
	}

	if err := s.changes.Append(ctx, entries); err != nil {
		s.logger.Error("failed to append recalc change log", zap.Error(err))
	}
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, changed, nil); err != nil {
		s.logger.Warn("failed to close recalc batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	return changed, nil
}

// repartitionStatus re-derives an account's state from its recomputed
// lifecycle end. A closed window expires the account, except while a paid
// package still runs, which earns the grace state.
func repartitionStatus(account models.Account, end *time.Time, today time.Time) models.AccountStatus {
	if end != nil && end.Before(today) {
		if account.BoundStudentID != nil &&
			account.BoundPackageExpiry != nil && !account.BoundPackageExpiry.Before(today) {
			return models.AccountStatusExpiredBound
		}
		return models.AccountStatusExpired
	}
	if account.BoundStudentID != nil {
		return models.AccountStatusUsed
	}
	return models.AccountStatusUnused
}

// FixIntegrity repairs structural drift between the pool and the roster:
// orphaned bindings, residual fields on free accounts, and used accounts
// without a student.
func (s *AccountService) FixIntegrity(ctx context.Context) (*models.IntegrityFixCounts, error) {
	opID, err := s.ops.Start(ctx, models.OperationIntegrityFix, s.operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open repair batch")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin repair transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var counts models.IntegrityFixCounts
	orphans, err := s.accounts.ReleaseOrphanBindings(ctx, tx)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release orphan bindings")
	}
	counts.OrphanBindings = int(orphans)

	stale, err := s.accounts.ClearStaleUnused(ctx, tx)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stale free accounts")
	}
	counts.StaleUnused = int(stale)

	unbound, err := s.accounts.ResetUnboundUsed(ctx, tx)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset unbound used accounts")
	}
	counts.UnboundUsed = int(unbound)

	if err := tx.Commit(); err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit repair transaction")
	}

	total := counts.OrphanBindings + counts.StaleUnused + counts.UnboundUsed
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, total, counts); err != nil {
		s.logger.Warn("failed to close repair batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	s.logger.Info("integrity repair finished",
		zap.Int("orphanBindings", counts.OrphanBindings),
		zap.Int("staleUnused", counts.StaleUnused),
		zap.Int("unboundUsed", counts.UnboundUsed))
	return &counts, nil
}
