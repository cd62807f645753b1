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

// SourceManual labels operator-initiated engine calls in the change log.
const SourceManual = "manual"

type accountTxStore interface {
	Find(ctx context.Context, ext sqlx.ExtContext, id string) (*models.Account, error)
	Apply(ctx context.Context, ext sqlx.ExtContext, id string, patch models.AccountPatch) (int64, error)
	NextAvailable(ctx context.Context, ext sqlx.ExtContext) (*models.Account, error)
}

type studentTxStore interface {
	Get(ctx context.Context, ext sqlx.ExtContext, studentID string) (*models.StudentEntry, error)
	Exists(ctx context.Context, ext sqlx.ExtContext, studentID string) (bool, error)
	SetMobileAccount(ctx context.Context, ext sqlx.ExtContext, studentID, accountID string) (int64, error)
	ClearMobileAccount(ctx context.Context, ext sqlx.ExtContext, studentID, accountID string) (int64, error)
	ClearOtherMobileRefs(ctx context.Context, ext sqlx.ExtContext, accountID, keepStudentID string) (int64, error)
}

type changeLogAppender interface {
	Append(ctx context.Context, entries []models.AccountChangeLog) error
}

type poolCacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// BindingService is the transactional engine pairing accounts with students.
// Every mutation runs in one transaction so the account row and the roster
// reference can never drift apart; change-log entries are appended after
// commit.
type BindingService struct {
	db       *sqlx.DB
	accounts accountTxStore
	students studentTxStore
	changes  changeLogAppender
	stats    poolCacheInvalidator
	logger   *zap.Logger
}

// NewBindingService constructs the binding engine.
func NewBindingService(
	db *sqlx.DB,
	accounts accountTxStore,
	students studentTxStore,
	changes changeLogAppender,
	stats poolCacheInvalidator,
	logger *zap.Logger,
) *BindingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BindingService{
		db:       db,
		accounts: accounts,
		students: students,
		changes:  changes,
		stats:    stats,
		logger:   logger,
	}
}

// Bind attaches one free account to a student. The roster side is scrubbed of
// competing references before the new one is written, so a bound account is
// referenced by at most one roster entry.
func (s *BindingService) Bind(ctx context.Context, req dto.BindRequest) error {
	var expiry *string
	if req.PackageExpiry != "" {
		parsed, err := time.ParseInLocation(models.DateOnly, req.PackageExpiry, time.Local)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "packageExpiry must use YYYY-MM-DD")
		}
		expiry = models.FormatDate(&parsed)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin bind transaction")
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := s.students.Exists(ctx, tx, req.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	account, err := s.accounts.Find(ctx, tx, req.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Status != models.AccountStatusUnused {
		return appErrors.Clone(appErrors.ErrInvalidState, "account is not in the free pool")
	}

	used := models.AccountStatusUsed
	patch := models.AccountPatch{
		Status:             &used,
		BoundStudentID:     &req.StudentID,
		BoundPackageExpiry: expiry,
		ClearBoundExpiry:   expiry == nil,
	}
	changes := patch.Diff(*account)

	if _, err := s.students.ClearOtherMobileRefs(ctx, tx, req.AccountID, req.StudentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scrub roster references")
	}
	rows, err := s.accounts.Apply(ctx, tx, req.AccountID, patch)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account")
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "account changed concurrently")
	}
	rows, err = s.students.SetMobileAccount(ctx, tx, req.StudentID, req.AccountID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update roster entry")
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "roster entry changed concurrently")
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit bind transaction")
	}

	s.audit(ctx, req.AccountID, models.ChangeTypeBind, changes, models.OperationContext{
		Source:    sourceOrManual(req.Source),
		StudentID: &req.StudentID,
		Remark:    optional(req.Remark),
	})
	s.logger.Info("account bound",
		zap.String("accountId", req.AccountID),
		zap.String("studentId", req.StudentID))
	return nil
}

// Release detaches an account from its student and returns it to the pool.
// The roster reference is cleared only when it still points at this account.
func (s *BindingService) Release(ctx context.Context, accountID string, req dto.ReleaseRequest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin release transaction")
	}
	defer func() { _ = tx.Rollback() }()

	account, err := s.accounts.Find(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.BoundStudentID == nil && account.Status != models.AccountStatusUsed {
		return appErrors.Clone(appErrors.ErrInvalidState, "account is not bound")
	}

	unused := models.AccountStatusUnused
	patch := models.AccountPatch{
		Status:            &unused,
		ClearBoundStudent: true,
		ClearBoundExpiry:  true,
	}
	changes := patch.Diff(*account)

	rows, err := s.accounts.Apply(ctx, tx, accountID, patch)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account")
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "account changed concurrently")
	}
	if account.BoundStudentID != nil {
		if _, err := s.students.ClearMobileAccount(ctx, tx, *account.BoundStudentID, accountID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear roster reference")
		}
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit release transaction")
	}

	s.audit(ctx, accountID, models.ChangeTypeRelease, changes, models.OperationContext{
		Source:    sourceOrManual(req.Source),
		StudentID: account.BoundStudentID,
		Remark:    optional(req.Remark),
	})
	s.logger.Info("account released", zap.String("accountId", accountID))
	return nil
}

// audit appends change-log entries and invalidates cached stats. Failures are
// logged, never surfaced: the committed state change already happened.
func (s *BindingService) audit(ctx context.Context, accountID, changeType string, changes []models.FieldChange, opCtx models.OperationContext) {
	if err := s.changes.Append(ctx, opCtx.EntriesFor(accountID, changeType, changes)); err != nil {
		s.logger.Error("failed to append change log",
			zap.String("accountId", accountID),
			zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

func sourceOrManual(source string) string {
	if source == "" {
		return SourceManual
	}
	return source
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
