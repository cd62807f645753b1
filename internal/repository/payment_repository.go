package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// PaymentRepository stores imported payments and their processing state.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, student_id, paid_at, amount, status, fail_reason, created_at, processed_at`

// BulkInsert stores new payment rows as PENDING.
func (r *PaymentRepository) BulkInsert(ctx context.Context, payments []models.Payment) (int64, error) {
	if len(payments) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin payment insert tx: %w", err)
	}
	const query = `INSERT INTO payments (student_id, paid_at, amount, status, created_at)
	VALUES (:student_id, :paid_at, :amount, :status, :created_at)`
	now := time.Now().UTC()
	var inserted int64
	for i := range payments {
		payments[i].Status = models.PaymentStatusPending
		payments[i].CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, tx, query, payments[i]); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert payment for %s: %w", payments[i].StudentID, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit payment insert tx: %w", err)
	}
	return inserted, nil
}

// ListByStatus returns payments in one state, oldest paid first so the
// processor replays them in payment order.
func (r *PaymentRepository) ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE status = $1 ORDER BY paid_at, id", paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, string(status)); err != nil {
		return nil, fmt.Errorf("list payments by status: %w", err)
	}
	return payments, nil
}

// MarkProcessed stamps a payment as handled.
func (r *PaymentRepository) MarkProcessed(ctx context.Context, ext sqlx.ExtContext, id int64) error {
	_, err := ext.ExecContext(ctx,
		"UPDATE payments SET status = 'PROCESSED', fail_reason = NULL, processed_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark payment processed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason; the row stays eligible for retry.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE payments SET status = 'FAILED', fail_reason = $1 WHERE id = $2", reason, id)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// ResetFailed moves failed payments back to PENDING for another pass.
func (r *PaymentRepository) ResetFailed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE payments SET status = 'PENDING', fail_reason = NULL WHERE status = 'FAILED'")
	if err != nil {
		return 0, fmt.Errorf("reset failed payments: %w", err)
	}
	return result.RowsAffected()
}

// CountByStatus returns how many payments sit in one state.
func (r *PaymentRepository) CountByStatus(ctx context.Context, status models.PaymentStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments WHERE status = $1", string(status)); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return total, nil
}

// LatestPaidAt returns the newest paid_at on record, or nil when empty.
func (r *PaymentRepository) LatestPaidAt(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := r.db.GetContext(ctx, &latest, "SELECT MAX(paid_at) FROM payments"); err != nil {
		return nil, fmt.Errorf("latest payment time: %w", err)
	}
	return latest, nil
}
