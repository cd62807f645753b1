package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

// SourceMaintenance labels sweep-originated changes in the change log.
const SourceMaintenance = "maintenance"

type accountSweepStore interface {
	accountTxStore
	ListExpiredBindings(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error)
	ListLifecycleEndedExpiring(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error)
	ListLifecycleEndedGrace(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error)
	ListGraceEnded(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error)
	ReleaseByIDs(ctx context.Context, ext sqlx.ExtContext, ids []string) (int64, error)
	UpdateStatusByIDs(ctx context.Context, ext sqlx.ExtContext, ids []string, status models.AccountStatus) (int64, error)
}

type studentSweepStore interface {
	studentTxStore
	MarkExpiredPackages(ctx context.Context, ext sqlx.ExtContext) (int64, error)
	FindDuplicateAccountIDs(ctx context.Context, ext sqlx.ExtContext) ([]string, error)
	ListByMobileAccount(ctx context.Context, ext sqlx.ExtContext, accountID string) ([]models.StudentEntry, error)
}

type operationStore interface {
	Start(ctx context.Context, operationType, operator string, remark *string) (int64, error)
	Complete(ctx context.Context, id int64, status models.OperationStatus, affected int, detail interface{}) error
}

type maintenanceSettingStore interface {
	SetTime(ctx context.Context, key string, value time.Time) error
}

// MaintenanceService runs the daily reconciliation sweep and the tools for
// resolving duplicate bindings. Each sweep step commits its own transaction
// so a late-step failure cannot roll back repairs already applied.
type MaintenanceService struct {
	db       *sqlx.DB
	accounts accountSweepStore
	students studentSweepStore
	changes  changeLogAppender
	ops      operationStore
	settings maintenanceSettingStore
	stats    poolCacheInvalidator
	operator string
	logger   *zap.Logger
}

// NewMaintenanceService constructs the sweep runner.
func NewMaintenanceService(
	db *sqlx.DB,
	accounts accountSweepStore,
	students studentSweepStore,
	changes changeLogAppender,
	ops operationStore,
	settings maintenanceSettingStore,
	stats poolCacheInvalidator,
	operator string,
	logger *zap.Logger,
) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{
		db:       db,
		accounts: accounts,
		students: students,
		changes:  changes,
		ops:      ops,
		settings: settings,
		stats:    stats,
		operator: operator,
		logger:   logger,
	}
}

// RunSweep executes the five reconciliation steps in order and records one
// operation batch covering the run.
func (s *MaintenanceService) RunSweep(ctx context.Context) (dto.SweepSummary, error) {
	opID, err := s.ops.Start(ctx, models.OperationMaintenance, s.operator, nil)
	if err != nil {
		return dto.SweepSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open maintenance batch")
	}
	opCtx := models.OperationContext{Source: SourceMaintenance, OperationID: &opID}

	var summary dto.SweepSummary
	steps := []func(context.Context, models.OperationContext, *dto.SweepSummary) error{
		s.releaseLapsedBindings,
		s.partitionLifecycleEnded,
		s.relabelExpiredPackages,
		s.expireGraceAccounts,
		s.repairDuplicates,
	}
	for _, step := range steps {
		if err := step(ctx, opCtx, &summary); err != nil {
			_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, summary.Total(), dto.OperationDetail{Sweep: &summary})
			return summary, err
		}
	}

	if err := s.settings.SetTime(ctx, models.SettingLastMaintenanceRun, time.Now()); err != nil {
		s.logger.Warn("failed to record maintenance timestamp", zap.Error(err))
	}
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, summary.Total(), dto.OperationDetail{Sweep: &summary}); err != nil {
		s.logger.Warn("failed to close maintenance batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	s.logger.Info("maintenance sweep finished",
		zap.Int("released", summary.Released),
		zap.Int("expired", summary.Expired),
		zap.Int("converted", summary.Converted),
		zap.Int("rebound", summary.Rebound),
		zap.Int("cleared", summary.Cleared))
	return summary, nil
}

// releaseLapsedBindings (step 1) returns used accounts with a lapsed package
// and an open lifecycle to the pool, clearing their roster references.
func (s *MaintenanceService) releaseLapsedBindings(ctx context.Context, opCtx models.OperationContext, summary *dto.SweepSummary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin sweep step")
	}
	defer func() { _ = tx.Rollback() }()

	accounts, err := s.accounts.ListExpiredBindings(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lapsed bindings")
	}
	if len(accounts) == 0 {
		return tx.Commit()
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	if _, err := s.accounts.ReleaseByIDs(ctx, tx, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release lapsed bindings")
	}
	for _, account := range accounts {
		if account.BoundStudentID == nil {
			continue
		}
		if _, err := s.students.ClearMobileAccount(ctx, tx, *account.BoundStudentID, account.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear roster reference")
		}
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit sweep step")
	}

	unused := models.AccountStatusUnused
	releasePatch := models.AccountPatch{Status: &unused, ClearBoundStudent: true, ClearBoundExpiry: true}
	entries := make([]models.AccountChangeLog, 0, len(accounts)*3)
	for _, account := range accounts {
		stepCtx := opCtx
		stepCtx.StudentID = account.BoundStudentID
		entries = append(entries, stepCtx.EntriesFor(account.ID, models.ChangeTypeRelease, releasePatch.Diff(account))...)
	}
	s.appendChanges(ctx, entries)
	summary.Released = len(accounts)
	return nil
}

// partitionLifecycleEnded (step 2) moves accounts whose lifecycle window
// closed into EXPIRED, or EXPIRED_BOUND when a paid package is still running.
// Both partitions are selected against the database clock, so an app server
// in a different timezone cannot misclassify an expiry date.
func (s *MaintenanceService) partitionLifecycleEnded(ctx context.Context, opCtx models.OperationContext, summary *dto.SweepSummary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin sweep step")
	}
	defer func() { _ = tx.Rollback() }()

	expired, err := s.accounts.ListLifecycleEndedExpiring(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ended lifecycles")
	}
	grace, err := s.accounts.ListLifecycleEndedGrace(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ended lifecycles in grace")
	}
	if len(expired) == 0 && len(grace) == 0 {
		return tx.Commit()
	}

	expiredIDs := make([]string, 0, len(expired))
	for _, account := range expired {
		expiredIDs = append(expiredIDs, account.ID)
	}
	graceIDs := make([]string, 0, len(grace))
	for _, account := range grace {
		graceIDs = append(graceIDs, account.ID)
	}
	if _, err := s.accounts.UpdateStatusByIDs(ctx, tx, expiredIDs, models.AccountStatusExpired); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire accounts")
	}
	if _, err := s.accounts.UpdateStatusByIDs(ctx, tx, graceIDs, models.AccountStatusExpiredBound); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to convert accounts to grace")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit sweep step")
	}

	entries := make([]models.AccountChangeLog, 0, len(expired)+len(grace))
	entries = append(entries, statusChangeEntries(opCtx, expired, models.AccountStatusExpired)...)
	entries = append(entries, statusChangeEntries(opCtx, grace, models.AccountStatusExpiredBound)...)
	s.appendChanges(ctx, entries)
	summary.Expired = len(expired)
	summary.Converted = len(grace)
	return nil
}

// relabelExpiredPackages (step 3) stamps the roster-side expiry label. The
// account side is untouched, so no change-log entries are produced.
func (s *MaintenanceService) relabelExpiredPackages(ctx context.Context, _ models.OperationContext, summary *dto.SweepSummary) error {
	marked, err := s.students.MarkExpiredPackages(ctx, s.db)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to relabel roster packages")
	}
	summary.RosterExpired = int(marked)
	return nil
}

// expireGraceAccounts (step 4) finishes EXPIRED_BOUND accounts whose package
// has now lapsed.
func (s *MaintenanceService) expireGraceAccounts(ctx context.Context, opCtx models.OperationContext, summary *dto.SweepSummary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin sweep step")
	}
	defer func() { _ = tx.Rollback() }()

	accounts, err := s.accounts.ListGraceEnded(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ended grace accounts")
	}
	if len(accounts) == 0 {
		return tx.Commit()
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	if _, err := s.accounts.UpdateStatusByIDs(ctx, tx, ids, models.AccountStatusExpired); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire grace accounts")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit sweep step")
	}

	s.appendChanges(ctx, statusChangeEntries(opCtx, accounts, models.AccountStatusExpired))
	summary.SubscriptionExpired = len(accounts)
	return nil
}

// repairDuplicates (step 5) resolves accounts referenced by multiple roster
// entries: the keeper stays, every other entry gets a fresh account or, when
// the pool is empty, loses its reference.
func (s *MaintenanceService) repairDuplicates(ctx context.Context, opCtx models.OperationContext, summary *dto.SweepSummary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin sweep step")
	}
	defer func() { _ = tx.Rollback() }()

	duplicateIDs, err := s.students.FindDuplicateAccountIDs(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find duplicate references")
	}
	if len(duplicateIDs) == 0 {
		return tx.Commit()
	}

	var entries []models.AccountChangeLog
	for _, accountID := range duplicateIDs {
		group, err := s.students.ListByMobileAccount(ctx, tx, accountID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicate group")
		}
		account, err := s.accounts.Find(ctx, tx, accountID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicated account")
		}
		keeper := chooseKeeper(account, group)
		if keeper == nil {
			continue
		}

		if account != nil {
			patch := keeperPatch(*account, *keeper)
			if !patch.IsZero() {
				changes := patch.Diff(*account)
				if _, err := s.accounts.Apply(ctx, tx, accountID, patch); err != nil {
					return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resync keeper binding")
				}
				keepCtx := opCtx
				keepCtx.StudentID = &keeper.StudentID
				entries = append(entries, keepCtx.EntriesFor(accountID, models.ChangeTypeRepair, changes)...)
			}
		}

		for i := range group {
			if group[i].StudentID == keeper.StudentID {
				continue
			}
			loser := group[i]
			moved, moveEntries, err := s.reassign(ctx, tx, opCtx, accountID, loser)
			if err != nil {
				return err
			}
			entries = append(entries, moveEntries...)
			if moved {
				summary.Rebound++
			} else {
				summary.Cleared++
			}
		}
		summary.DuplicateGroups++
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit sweep step")
	}
	s.appendChanges(ctx, entries)
	return nil
}

// reassign moves one losing roster entry to a fresh account, or clears its
// reference when the pool is exhausted. Returns whether a new account was
// allocated.
func (s *MaintenanceService) reassign(ctx context.Context, tx sqlx.ExtContext, opCtx models.OperationContext, fromAccountID string, entry models.StudentEntry) (bool, []models.AccountChangeLog, error) {
	next, err := s.accounts.NextAvailable(ctx, tx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to pick replacement account")
		}
		if _, err := s.students.ClearMobileAccount(ctx, tx, entry.StudentID, fromAccountID); err != nil {
			return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear duplicate reference")
		}
		return false, nil, nil
	}

	used := models.AccountStatusUsed
	patch := models.AccountPatch{
		Status:             &used,
		BoundStudentID:     &entry.StudentID,
		BoundPackageExpiry: models.FormatDate(entry.PackageExpiry),
		ClearBoundExpiry:   entry.PackageExpiry == nil,
	}
	changes := patch.Diff(*next)
	if _, err := s.accounts.Apply(ctx, tx, next.ID, patch); err != nil {
		return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind replacement account")
	}
	if _, err := s.students.SetMobileAccount(ctx, tx, entry.StudentID, next.ID); err != nil {
		return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to point roster at replacement")
	}
	moveCtx := opCtx
	moveCtx.StudentID = &entry.StudentID
	return true, moveCtx.EntriesFor(next.ID, models.ChangeTypeRepair, changes), nil
}

// DuplicateBindings lists every account referenced by more than one roster
// entry, for operator review.
func (s *MaintenanceService) DuplicateBindings(ctx context.Context) ([]models.DuplicateBinding, error) {
	ids, err := s.students.FindDuplicateAccountIDs(ctx, s.db)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find duplicate references")
	}
	groups := make([]models.DuplicateBinding, 0, len(ids))
	for _, accountID := range ids {
		entries, err := s.students.ListByMobileAccount(ctx, s.db, accountID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicate group")
		}
		group := models.DuplicateBinding{AccountID: accountID}
		account, err := s.accounts.Find(ctx, s.db, accountID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicated account")
		}
		if account != nil {
			group.AccountStatus = &account.Status
			group.BoundStudentID = account.BoundStudentID
			group.BoundPackageExpiry = account.BoundPackageExpiry
		}
		for _, entry := range entries {
			group.Entries = append(group.Entries, models.DuplicateEntry{
				StudentID:        entry.StudentID,
				FullName:         entry.FullName,
				Category:         entry.Category,
				PackageExpiry:    entry.PackageExpiry,
				UpdatedAt:        entry.UpdatedAt,
				IsCurrentBinding: account != nil && account.BoundStudentID != nil && *account.BoundStudentID == entry.StudentID,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Rebind moves one student out of a duplicate group onto a fresh account.
// When the departing student was the account's bound student, the binding is
// recomputed from the remaining entries, or released when none remain.
func (s *MaintenanceService) Rebind(ctx context.Context, req dto.RebindRequest) (*dto.RebindResult, error) {
	opID, err := s.ops.Start(ctx, models.OperationManualRebind, s.operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open rebind batch")
	}
	opCtx := models.OperationContext{Source: SourceManual, OperationID: &opID, StudentID: &req.StudentID}

	result, entries, err := s.rebindTx(ctx, opCtx, req)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, err
	}
	s.appendChanges(ctx, entries)
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, 1, nil); err != nil {
		s.logger.Warn("failed to close rebind batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	return result, nil
}

func (s *MaintenanceService) rebindTx(ctx context.Context, opCtx models.OperationContext, req dto.RebindRequest) (*dto.RebindResult, []models.AccountChangeLog, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin rebind transaction")
	}
	defer func() { _ = tx.Rollback() }()

	account, err := s.accounts.Find(ctx, tx, req.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	group, err := s.students.ListByMobileAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicate group")
	}
	var moving *models.StudentEntry
	remaining := make([]models.StudentEntry, 0, len(group))
	for i := range group {
		if group[i].StudentID == req.StudentID {
			moving = &group[i]
			continue
		}
		remaining = append(remaining, group[i])
	}
	if moving == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student does not reference this account")
	}

	var entries []models.AccountChangeLog
	moved, moveEntries, err := s.reassign(ctx, tx, opCtx, req.AccountID, *moving)
	if err != nil {
		return nil, nil, err
	}
	if !moved {
		return nil, nil, appErrors.ErrNoAvailableAccount
	}
	entries = append(entries, moveEntries...)

	// Departing student held the binding: hand it to the best remaining
	// entry, or release the account when the group is now empty.
	if account.BoundStudentID != nil && *account.BoundStudentID == req.StudentID {
		keeper := chooseKeeper(nil, remaining)
		var patch models.AccountPatch
		if keeper != nil {
			patch = keeperPatch(*account, *keeper)
			opCtx.StudentID = &keeper.StudentID
		} else {
			unused := models.AccountStatusUnused
			patch = models.AccountPatch{Status: &unused, ClearBoundStudent: true, ClearBoundExpiry: true}
		}
		changes := patch.Diff(*account)
		if _, err := s.accounts.Apply(ctx, tx, req.AccountID, patch); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewire original binding")
		}
		entries = append(entries, opCtx.EntriesFor(req.AccountID, models.ChangeTypeRepair, changes)...)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit rebind transaction")
	}

	newAccountID := ""
	if len(moveEntries) > 0 {
		newAccountID = moveEntries[0].AccountID
	}
	return &dto.RebindResult{Message: "student moved to a new account", NewAccountID: newAccountID}, entries, nil
}

func (s *MaintenanceService) appendChanges(ctx context.Context, entries []models.AccountChangeLog) {
	if len(entries) == 0 {
		return
	}
	if err := s.changes.Append(ctx, entries); err != nil {
		s.logger.Error("failed to append sweep change log", zap.Error(err))
	}
}

// chooseKeeper picks which roster entry keeps a duplicated account: the
// account's own bound student when it is part of the group, otherwise the
// most recently updated entry. Entries arrive sorted by updated_at DESC.
func chooseKeeper(account *models.Account, entries []models.StudentEntry) *models.StudentEntry {
	if len(entries) == 0 {
		return nil
	}
	if account != nil && account.BoundStudentID != nil {
		for i := range entries {
			if entries[i].StudentID == *account.BoundStudentID {
				return &entries[i]
			}
		}
	}
	return &entries[0]
}

// keeperPatch resyncs an account onto its keeper entry. Status is promoted to
// USED only from the free pool; expired accounts keep their terminal state.
func keeperPatch(account models.Account, keeper models.StudentEntry) models.AccountPatch {
	patch := models.AccountPatch{
		BoundStudentID:     &keeper.StudentID,
		BoundPackageExpiry: models.FormatDate(keeper.PackageExpiry),
		ClearBoundExpiry:   keeper.PackageExpiry == nil,
	}
	if account.Status == models.AccountStatusUnused {
		used := models.AccountStatusUsed
		patch.Status = &used
	}
	return patch
}

func statusChangeEntries(opCtx models.OperationContext, accounts []models.Account, status models.AccountStatus) []models.AccountChangeLog {
	entries := make([]models.AccountChangeLog, 0, len(accounts))
	patch := models.AccountPatch{Status: &status}
	for _, account := range accounts {
		stepCtx := opCtx
		stepCtx.StudentID = account.BoundStudentID
		entries = append(entries, stepCtx.EntriesFor(account.ID, models.ChangeTypeMaintenance, patch.Diff(account))...)
	}
	return entries
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
