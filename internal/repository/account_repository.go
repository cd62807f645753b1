package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// AccountRepository manages persistence for the account pool. Methods that
// participate in engine transactions take an explicit sqlx.ExtContext so the
// binding engine and sweep can run them against an open transaction; *sqlx.DB
// satisfies the same interface for standalone calls.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs the repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, account_type, status, lifecycle_start, lifecycle_end, bound_student_id, bound_package_expiry, created_at, updated_at`

// DB exposes the underlying handle for transaction management.
func (r *AccountRepository) DB() *sqlx.DB {
	return r.db
}

// Get fetches one account joined with the bound student's display name.
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.AccountDetail, error) {
	const query = `SELECT a.id, a.account_type, a.status, a.lifecycle_start, a.lifecycle_end,
       a.bound_student_id, a.bound_package_expiry, a.created_at, a.updated_at,
       s.full_name AS student_name
FROM isp_accounts a
LEFT JOIN student_entries s ON s.student_id = a.bound_student_id
WHERE a.id = $1`
	var detail models.AccountDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Find loads one bare account row through the provided executor.
func (r *AccountRepository) Find(ctx context.Context, ext sqlx.ExtContext, id string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM isp_accounts WHERE id = $1", accountColumns)
	var account models.Account
	if err := sqlx.GetContext(ctx, ext, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// Search returns accounts matching the filter, most recently updated first.
func (r *AccountRepository) Search(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT a.id, a.account_type, a.status, a.lifecycle_start, a.lifecycle_end,
       a.bound_student_id, a.bound_package_expiry, a.created_at, a.updated_at,
       s.full_name AS student_name
FROM isp_accounts a
LEFT JOIN student_entries s ON s.student_id = a.bound_student_id`)

	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.AccountType != "" {
		args = append(args, filter.AccountType)
		conditions = append(conditions, fmt.Sprintf("a.account_type = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.bound_student_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY a.updated_at DESC")

	var accounts []models.AccountDetail
	if err := r.db.SelectContext(ctx, &accounts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	return accounts, nil
}

// availableQuery is the single allocation query shared by the payment-binding
// flow and duplicate repair. Oldest inventory first, ties broken by id, so
// allocation order is stable.
const availableQuery = `SELECT a.id, a.account_type, a.status, a.lifecycle_start, a.lifecycle_end,
       a.bound_student_id, a.bound_package_expiry, a.created_at, a.updated_at
FROM isp_accounts a
LEFT JOIN account_type_rules r ON r.account_type = a.account_type
WHERE a.status = 'UNUSED'
  AND (a.lifecycle_end IS NULL OR a.lifecycle_end > CURRENT_DATE)
  AND COALESCE(r.allow_binding, TRUE)
ORDER BY a.created_at, a.id`

// GetAvailable returns bindable unused accounts in allocation order.
func (r *AccountRepository) GetAvailable(ctx context.Context, limit int) ([]models.Account, error) {
	query := availableQuery
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("list available accounts: %w", err)
	}
	return accounts, nil
}

// NextAvailable picks the single next free account inside a transaction.
// Returns sql.ErrNoRows when the pool is exhausted.
func (r *AccountRepository) NextAvailable(ctx context.Context, ext sqlx.ExtContext) (*models.Account, error) {
	var account models.Account
	if err := sqlx.GetContext(ctx, ext, &account, availableQuery+" LIMIT 1"); err != nil {
		return nil, err
	}
	return &account, nil
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.Status == "" {
		account.Status = models.AccountStatusUnused
	}
	const query = `INSERT INTO isp_accounts
	(id, account_type, status, lifecycle_start, lifecycle_end, bound_student_id, bound_package_expiry, created_at, updated_at)
	VALUES (:id, :account_type, :status, :lifecycle_start, :lifecycle_end, :bound_student_id, :bound_package_expiry, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// BulkUpsert inserts or refreshes imported accounts in one transaction.
// Binding fields are never touched by import.
func (r *AccountRepository) BulkUpsert(ctx context.Context, accounts []models.Account) (int64, error) {
	if len(accounts) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin account upsert tx: %w", err)
	}
	const query = `INSERT INTO isp_accounts
	(id, account_type, status, lifecycle_start, lifecycle_end, created_at, updated_at)
	VALUES (:id, :account_type, :status, :lifecycle_start, :lifecycle_end, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
	    account_type = EXCLUDED.account_type,
	    status = EXCLUDED.status,
	    lifecycle_start = EXCLUDED.lifecycle_start,
	    lifecycle_end = EXCLUDED.lifecycle_end,
	    updated_at = EXCLUDED.updated_at`
	var affected int64
	now := time.Now().UTC()
	for i := range accounts {
		if accounts[i].CreatedAt.IsZero() {
			accounts[i].CreatedAt = now
		}
		accounts[i].UpdatedAt = now
		result, err := sqlx.NamedExecContext(ctx, tx, query, accounts[i])
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert account %s: %w", accounts[i].ID, err)
		}
		rows, _ := result.RowsAffected()
		affected += rows
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit account upsert tx: %w", err)
	}
	return affected, nil
}

// Apply writes a typed field patch to one account and reports affected rows.
// Clause order is fixed so statements stay deterministic.
func (r *AccountRepository) Apply(ctx context.Context, ext sqlx.ExtContext, id string, patch models.AccountPatch) (int64, error) {
	if patch.IsZero() {
		return 0, nil
	}
	setParts := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendNullable := func(column string, value *string, clear bool) {
		if value != nil {
			appendSet(column, *value)
		} else if clear {
			setParts = append(setParts, fmt.Sprintf("%s = NULL", column))
		}
	}

	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	appendNullable("bound_student_id", patch.BoundStudentID, patch.ClearBoundStudent)
	appendNullable("bound_package_expiry", patch.BoundPackageExpiry, patch.ClearBoundExpiry)
	appendNullable("lifecycle_start", patch.LifecycleStart, patch.ClearLifecycleStart)
	appendNullable("lifecycle_end", patch.LifecycleEnd, patch.ClearLifecycleEnd)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE isp_accounts SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(setParts, ", "), len(args))

	result, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("apply account patch: %w", err)
	}
	return result.RowsAffected()
}

// ListExpiredBindings selects used accounts whose package lapsed while their
// lifecycle is still open (sweep step 1 working set).
func (r *AccountRepository) ListExpiredBindings(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM isp_accounts
WHERE status = 'USED'
  AND bound_package_expiry < CURRENT_DATE
  AND (lifecycle_end IS NULL OR lifecycle_end > CURRENT_DATE)`, accountColumns)
	var accounts []models.Account
	if err := sqlx.SelectContext(ctx, ext, &accounts, query); err != nil {
		return nil, fmt.Errorf("list expired bindings: %w", err)
	}
	return accounts, nil
}

// ListLifecycleEndedExpiring selects accounts whose lifecycle window closed
// with no package still running (sweep step 2, EXPIRED side). The expiry
// comparison happens against the database clock so both partitions agree on
// what "today" means.
func (r *AccountRepository) ListLifecycleEndedExpiring(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM isp_accounts
WHERE lifecycle_end < CURRENT_DATE
  AND status NOT IN ('EXPIRED', 'EXPIRED_BOUND')
  AND (bound_package_expiry IS NULL OR bound_package_expiry < CURRENT_DATE)`, accountColumns)
	var accounts []models.Account
	if err := sqlx.SelectContext(ctx, ext, &accounts, query); err != nil {
		return nil, fmt.Errorf("list lifecycle ended: %w", err)
	}
	return accounts, nil
}

// ListLifecycleEndedGrace selects lifecycle-ended accounts whose paid package
// is still running (sweep step 2, EXPIRED_BOUND side).
func (r *AccountRepository) ListLifecycleEndedGrace(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM isp_accounts
WHERE lifecycle_end < CURRENT_DATE
  AND status NOT IN ('EXPIRED', 'EXPIRED_BOUND')
  AND bound_package_expiry >= CURRENT_DATE`, accountColumns)
	var accounts []models.Account
	if err := sqlx.SelectContext(ctx, ext, &accounts, query); err != nil {
		return nil, fmt.Errorf("list lifecycle ended grace: %w", err)
	}
	return accounts, nil
}

// ListGraceEnded selects grace accounts whose bound package has now lapsed
// (sweep step 4 working set).
func (r *AccountRepository) ListGraceEnded(ctx context.Context, ext sqlx.ExtContext) ([]models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM isp_accounts
WHERE status = 'EXPIRED_BOUND'
  AND (bound_package_expiry IS NULL OR bound_package_expiry < CURRENT_DATE)`, accountColumns)
	var accounts []models.Account
	if err := sqlx.SelectContext(ctx, ext, &accounts, query); err != nil {
		return nil, fmt.Errorf("list grace ended: %w", err)
	}
	return accounts, nil
}

// ReleaseByIDs batch-clears bindings and returns the accounts to the pool.
func (r *AccountRepository) ReleaseByIDs(ctx context.Context, ext sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE isp_accounts
SET status = 'UNUSED', bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW()
WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build release query: %w", err)
	}
	result, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("release accounts: %w", err)
	}
	return result.RowsAffected()
}

// UpdateStatusByIDs batch-moves accounts to one status.
func (r *AccountRepository) UpdateStatusByIDs(ctx context.Context, ext sqlx.ExtContext, ids []string, status models.AccountStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("UPDATE isp_accounts SET status = ?, updated_at = NOW() WHERE id IN (?)", string(status), ids)
	if err != nil {
		return 0, fmt.Errorf("build status update query: %w", err)
	}
	result, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("update account status: %w", err)
	}
	return result.RowsAffected()
}

// ListByType returns every account of one type label.
func (r *AccountRepository) ListByType(ctx context.Context, accountType string) ([]models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM isp_accounts WHERE account_type = $1 ORDER BY id", accountColumns)
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, accountType); err != nil {
		return nil, fmt.Errorf("list accounts by type: %w", err)
	}
	return accounts, nil
}

// CountsByStatus aggregates the pool per status.
func (r *AccountRepository) CountsByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM isp_accounts GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count accounts by status: %w", err)
	}
	return counts, nil
}

// Count returns the pool size.
func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM isp_accounts"); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return total, nil
}

// ReleaseOrphanBindings clears used accounts whose roster entry no longer
// points back at them (integrity repair).
func (r *AccountRepository) ReleaseOrphanBindings(ctx context.Context, ext sqlx.ExtContext) (int64, error) {
	const query = `UPDATE isp_accounts a
SET status = 'UNUSED', bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW()
WHERE a.status = 'USED'
  AND a.bound_student_id IS NOT NULL
  AND NOT EXISTS (
      SELECT 1 FROM student_entries s
      WHERE s.mobile_account = a.id AND s.student_id = a.bound_student_id
  )`
	result, err := ext.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("release orphan bindings: %w", err)
	}
	return result.RowsAffected()
}

// ClearStaleUnused nulls residual binding fields on unused accounts.
func (r *AccountRepository) ClearStaleUnused(ctx context.Context, ext sqlx.ExtContext) (int64, error) {
	const query = `UPDATE isp_accounts
SET bound_student_id = NULL, bound_package_expiry = NULL, updated_at = NOW()
WHERE status = 'UNUSED'
  AND (bound_student_id IS NOT NULL OR bound_package_expiry IS NOT NULL)`
	result, err := ext.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("clear stale unused: %w", err)
	}
	return result.RowsAffected()
}

// ResetUnboundUsed returns used-but-unbound accounts to the pool.
func (r *AccountRepository) ResetUnboundUsed(ctx context.Context, ext sqlx.ExtContext) (int64, error) {
	const query = `UPDATE isp_accounts
SET status = 'UNUSED', updated_at = NOW()
WHERE status = 'USED' AND bound_student_id IS NULL`
	result, err := ext.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset unbound used: %w", err)
	}
	return result.RowsAffected()
}
