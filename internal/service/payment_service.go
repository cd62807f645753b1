package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	"github.com/noah-isme/campus-net-api/pkg/config"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
	"github.com/noah-isme/campus-net-api/pkg/export"
)

// SourcePayment labels payment-driven engine changes in the change log.
const SourcePayment = "payment"

type paymentStore interface {
	BulkInsert(ctx context.Context, payments []models.Payment) (int64, error)
	ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
	MarkProcessed(ctx context.Context, ext sqlx.ExtContext, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ResetFailed(ctx context.Context) (int64, error)
}

type paymentSettingStore interface {
	GetTime(ctx context.Context, key string) (*time.Time, error)
	SetTime(ctx context.Context, key string, value time.Time) error
}

type rosterBindStore interface {
	Get(ctx context.Context, ext sqlx.ExtContext, studentID string) (*models.StudentEntry, error)
	ApplyBinding(ctx context.Context, ext sqlx.ExtContext, studentID, accountID, packageLabel string, packageExpiry *time.Time) (int64, error)
	ClearOtherMobileRefs(ctx context.Context, ext sqlx.ExtContext, accountID, keepStudentID string) (int64, error)
}

// PaymentService ingests payment batches and turns pending payments into
// account bindings. Each payment is settled in its own transaction so one bad
// row never blocks the batch.
type PaymentService struct {
	db       *sqlx.DB
	payments paymentStore
	students rosterBindStore
	accounts accountTxStore
	changes  changeLogAppender
	ops      operationStore
	settings paymentSettingStore
	stats    poolCacheInvalidator
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	cfg      config.BindingConfig
	logger   *zap.Logger
}

// NewPaymentService constructs the payment processor.
func NewPaymentService(
	db *sqlx.DB,
	payments paymentStore,
	students rosterBindStore,
	accounts accountTxStore,
	changes changeLogAppender,
	ops operationStore,
	settings paymentSettingStore,
	stats poolCacheInvalidator,
	csv *export.CSVExporter,
	pdf *export.PDFExporter,
	cfg config.BindingConfig,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		db:       db,
		payments: payments,
		students: students,
		accounts: accounts,
		changes:  changes,
		ops:      ops,
		settings: settings,
		stats:    stats,
		csv:      csv,
		pdf:      pdf,
		cfg:      cfg,
		logger:   logger,
	}
}

// Import stores a payment batch. Rows at or before the last imported payment
// timestamp are treated as replays and skipped, so re-submitting a file is
// harmless.
func (s *PaymentService) Import(ctx context.Context, req dto.ImportPaymentsRequest) (*dto.ImportSummary, error) {
	opID, err := s.ops.Start(ctx, models.OperationPaymentImport, s.cfg.Operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open import batch")
	}

	cutoff, err := s.settings.GetTime(ctx, models.SettingLastPaymentImport)
	if err != nil {
		s.logger.Warn("failed to load import cutoff, importing everything", zap.Error(err))
	}

	summary := dto.ImportSummary{SourceRows: len(req.Rows)}
	payments := make([]models.Payment, 0, len(req.Rows))
	var newest time.Time
	for _, row := range req.Rows {
		if cutoff != nil && !row.PaidAt.After(*cutoff) {
			summary.Skipped++
			continue
		}
		payments = append(payments, models.Payment{
			StudentID: row.StudentID,
			PaidAt:    row.PaidAt,
			Amount:    row.Amount,
		})
		if row.PaidAt.After(newest) {
			newest = row.PaidAt
		}
	}

	inserted, err := s.payments.BulkInsert(ctx, payments)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, dto.OperationDetail{Import: &summary})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payments")
	}
	summary.Processed = int(inserted)
	if !newest.IsZero() {
		if err := s.settings.SetTime(ctx, models.SettingLastPaymentImport, newest); err != nil {
			s.logger.Warn("failed to advance import cutoff", zap.Error(err))
		}
	}
	if err := s.ops.Complete(ctx, opID, models.OperationStatusSuccess, summary.Processed, dto.OperationDetail{Import: &summary}); err != nil {
		s.logger.Warn("failed to close import batch", zap.Error(err))
	}
	return &summary, nil
}

// ProcessPending settles every pending payment: an account is allocated or
// extended per payment, the roster follows, and the resulting bindings are
// exported as CSV and PDF.
func (s *PaymentService) ProcessPending(ctx context.Context) (*dto.ProcessResult, error) {
	opID, err := s.ops.Start(ctx, models.OperationBindBatch, s.cfg.Operator, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open bind batch")
	}
	opCtx := models.OperationContext{Source: SourcePayment, OperationID: &opID}

	pending, err := s.payments.ListByStatus(ctx, models.PaymentStatusPending)
	if err != nil {
		_ = s.ops.Complete(ctx, opID, models.OperationStatusFailed, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending payments")
	}
	if s.cfg.ProcessBatchSize > 0 && len(pending) > s.cfg.ProcessBatchSize {
		pending = pending[:s.cfg.ProcessBatchSize]
	}

	result := &dto.ProcessResult{}
	var entries []models.AccountChangeLog
	for _, payment := range pending {
		row, changes, err := s.settle(ctx, opCtx, payment)
		if err != nil {
			result.Failed++
			s.logger.Warn("payment not settled",
				zap.Int64("paymentId", payment.ID),
				zap.String("studentId", payment.StudentID),
				zap.Error(err))
			if err := s.payments.MarkFailed(ctx, payment.ID, err.Error()); err != nil {
				s.logger.Error("failed to mark payment failed", zap.Int64("paymentId", payment.ID), zap.Error(err))
			}
			continue
		}
		result.Processed++
		result.Bindings = append(result.Bindings, *row)
		entries = append(entries, changes...)
	}

	if err := s.changes.Append(ctx, entries); err != nil {
		s.logger.Error("failed to append bind batch change log", zap.Error(err))
	}
	if len(result.Bindings) > 0 {
		s.writeExports(result)
	}

	detail := dto.BindBatchSummary{Processed: result.Processed, Failed: result.Failed, ExportFile: result.CSVFile}
	status := models.OperationStatusSuccess
	if result.Failed > 0 && result.Processed == 0 {
		status = models.OperationStatusFailed
	}
	if err := s.ops.Complete(ctx, opID, status, result.Processed, dto.OperationDetail{BindBatch: &detail}); err != nil {
		s.logger.Warn("failed to close bind batch", zap.Error(err))
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	return result, nil
}

// settle handles one payment in one transaction. A student already holding an
// account gets its package extended; otherwise the next free account is
// allocated.
func (s *PaymentService) settle(ctx context.Context, opCtx models.OperationContext, payment models.Payment) (*dto.BindingExportRow, []models.AccountChangeLog, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin settle transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := s.students.Get(ctx, tx, payment.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("student %s not on roster", payment.StudentID)
		}
		return nil, nil, fmt.Errorf("load roster entry: %w", err)
	}

	sub := SubscriptionForAmount(payment.Amount, s.cfg.MonthlyAmount, s.cfg.YearlyAmount, payment.PaidAt)

	account, err := s.targetAccount(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}

	used := models.AccountStatusUsed
	patch := models.AccountPatch{
		Status:             &used,
		BoundStudentID:     &payment.StudentID,
		BoundPackageExpiry: models.FormatDate(sub.Expiry),
		ClearBoundExpiry:   sub.Expiry == nil,
	}
	changes := patch.Diff(*account)
	// Stale roster rows may still point at the allocated account; scrub them
	// so only the paying student references it.
	if _, err := s.students.ClearOtherMobileRefs(ctx, tx, account.ID, payment.StudentID); err != nil {
		return nil, nil, fmt.Errorf("clear stale references to %s: %w", account.ID, err)
	}
	if _, err := s.accounts.Apply(ctx, tx, account.ID, patch); err != nil {
		return nil, nil, fmt.Errorf("bind account %s: %w", account.ID, err)
	}
	if _, err := s.students.ApplyBinding(ctx, tx, payment.StudentID, account.ID, sub.Label, sub.Expiry); err != nil {
		return nil, nil, fmt.Errorf("update roster entry: %w", err)
	}
	if err := s.payments.MarkProcessed(ctx, tx, payment.ID); err != nil {
		return nil, nil, fmt.Errorf("mark payment processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit settle transaction: %w", err)
	}

	rowCtx := opCtx
	rowCtx.StudentID = &payment.StudentID
	row := &dto.BindingExportRow{
		StudentID:    payment.StudentID,
		AccountID:    account.ID,
		PackageLabel: sub.Label,
		Amount:       payment.Amount,
	}
	if sub.Expiry != nil {
		row.PackageExpiry = sub.Expiry.Format(models.DateOnly)
	}
	return row, rowCtx.EntriesFor(account.ID, models.ChangeTypeBind, changes), nil
}

// targetAccount returns the student's current account when it is still bound
// to them, otherwise the next free one.
func (s *PaymentService) targetAccount(ctx context.Context, tx sqlx.ExtContext, entry *models.StudentEntry) (*models.Account, error) {
	if entry.MobileAccount != nil {
		account, err := s.accounts.Find(ctx, tx, *entry.MobileAccount)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load current account: %w", err)
		}
		if account != nil && account.BoundStudentID != nil && *account.BoundStudentID == entry.StudentID {
			return account, nil
		}
	}
	account, err := s.accounts.NextAvailable(ctx, tx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("no unused account available")
		}
		return nil, fmt.Errorf("pick free account: %w", err)
	}
	return account, nil
}

// RetryFailed moves failed payments back to pending and settles them again.
func (s *PaymentService) RetryFailed(ctx context.Context) (*dto.ProcessResult, error) {
	reset, err := s.payments.ResetFailed(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset failed payments")
	}
	s.logger.Info("failed payments reset", zap.Int64("count", reset))
	return s.ProcessPending(ctx)
}

// List returns payments in one state.
func (s *PaymentService) List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	payments, err := s.payments.ListByStatus(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// writeExports renders the batch binding report. Export failure is logged and
// leaves the result without file names; the bindings themselves are already
// committed.
func (s *PaymentService) writeExports(result *dto.ProcessResult) {
	if s.csv == nil || s.cfg.ExportDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.ExportDir, 0o755); err != nil {
		s.logger.Error("failed to create export directory", zap.Error(err))
		return
	}

	dataset := export.Dataset{
		Headers: []string{"Student ID", "Account", "Package", "Expires", "Amount"},
	}
	for _, row := range result.Bindings {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID": row.StudentID,
			"Account":    row.AccountID,
			"Package":    row.PackageLabel,
			"Expires":    row.PackageExpiry,
			"Amount":     fmt.Sprintf("%.2f", row.Amount),
		})
	}

	stamp := time.Now().Format("20060102_150405")
	csvPath := filepath.Join(s.cfg.ExportDir, fmt.Sprintf("bindings_%s.csv", stamp))
	if payload, err := s.csv.Render(dataset); err != nil {
		s.logger.Error("failed to render binding csv", zap.Error(err))
	} else if err := os.WriteFile(csvPath, payload, 0o644); err != nil {
		s.logger.Error("failed to write binding csv", zap.Error(err))
	} else {
		result.CSVFile = csvPath
	}

	if s.pdf == nil {
		return
	}
	pdfPath := filepath.Join(s.cfg.ExportDir, fmt.Sprintf("bindings_%s.pdf", stamp))
	if payload, err := s.pdf.Render(dataset, "Account Bindings"); err != nil {
		s.logger.Error("failed to render binding pdf", zap.Error(err))
	} else if err := os.WriteFile(pdfPath, payload, 0o644); err != nil {
		s.logger.Error("failed to write binding pdf", zap.Error(err))
	} else {
		result.PDFFile = pdfPath
	}
}
