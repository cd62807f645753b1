package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// StudentRepository manages the imported roster. The roster mirrors account
// bindings through mobile_account, so most mutation methods take an
// sqlx.ExtContext and run inside the binding engine's transactions.
type StudentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `student_id, package_label, full_name, category, mobile_account, secondary_account, tertiary_account, package_expiry, imported_at, updated_at`

// Get fetches one roster entry by student id.
func (r *StudentRepository) Get(ctx context.Context, ext sqlx.ExtContext, studentID string) (*models.StudentEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM student_entries WHERE student_id = $1", studentColumns)
	var entry models.StudentEntry
	if err := sqlx.GetContext(ctx, ext, &entry, query, studentID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Exists reports whether the roster knows the student.
func (r *StudentRepository) Exists(ctx context.Context, ext sqlx.ExtContext, studentID string) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, ext, &found,
		"SELECT EXISTS (SELECT 1 FROM student_entries WHERE student_id = $1)", studentID)
	if err != nil {
		return false, fmt.Errorf("check student exists: %w", err)
	}
	return found, nil
}

// Search returns roster entries matching an id or name fragment.
func (r *StudentRepository) Search(ctx context.Context, keyword string, limit int) ([]models.StudentEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_entries
WHERE student_id ILIKE $1 OR full_name ILIKE $1
ORDER BY updated_at DESC LIMIT $2`, studentColumns)
	var entries []models.StudentEntry
	if err := r.db.SelectContext(ctx, &entries, query, "%"+keyword+"%", limit); err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return entries, nil
}

// BulkUpsert merges a roster import. Binding columns keep their current
// values; only descriptive fields follow the import.
func (r *StudentRepository) BulkUpsert(ctx context.Context, entries []models.StudentEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin roster upsert tx: %w", err)
	}
	const query = `INSERT INTO student_entries
	(student_id, package_label, full_name, category, package_expiry, imported_at, updated_at)
	VALUES (:student_id, :package_label, :full_name, :category, :package_expiry, :imported_at, :updated_at)
	ON CONFLICT (student_id) DO UPDATE SET
	    package_label = EXCLUDED.package_label,
	    full_name = EXCLUDED.full_name,
	    category = EXCLUDED.category,
	    package_expiry = EXCLUDED.package_expiry,
	    imported_at = EXCLUDED.imported_at,
	    updated_at = EXCLUDED.updated_at`
	var affected int64
	now := time.Now().UTC()
	for i := range entries {
		entries[i].ImportedAt = now
		entries[i].UpdatedAt = now
		result, err := sqlx.NamedExecContext(ctx, tx, query, entries[i])
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert student %s: %w", entries[i].StudentID, err)
		}
		rows, _ := result.RowsAffected()
		affected += rows
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit roster upsert tx: %w", err)
	}
	return affected, nil
}

// SetMobileAccount points the roster entry at an account. Returns affected
// rows so callers can detect a missing entry.
func (r *StudentRepository) SetMobileAccount(ctx context.Context, ext sqlx.ExtContext, studentID, accountID string) (int64, error) {
	result, err := ext.ExecContext(ctx,
		"UPDATE student_entries SET mobile_account = $1, updated_at = NOW() WHERE student_id = $2",
		accountID, studentID)
	if err != nil {
		return 0, fmt.Errorf("set mobile account: %w", err)
	}
	return result.RowsAffected()
}

// ApplyBinding records a paid binding on the roster: account reference plus
// the purchased package label and expiry. The secondary and tertiary carrier
// references are nulled so the managed account is the only one left standing.
func (r *StudentRepository) ApplyBinding(ctx context.Context, ext sqlx.ExtContext, studentID, accountID, packageLabel string, packageExpiry *time.Time) (int64, error) {
	result, err := ext.ExecContext(ctx,
		`UPDATE student_entries
SET mobile_account = $1, package_label = $2, package_expiry = $3,
    secondary_account = NULL, tertiary_account = NULL, updated_at = NOW()
WHERE student_id = $4`,
		accountID, packageLabel, packageExpiry, studentID)
	if err != nil {
		return 0, fmt.Errorf("apply roster binding: %w", err)
	}
	return result.RowsAffected()
}

// ClearMobileAccount drops the roster reference, matched by both sides so a
// re-bound student is never clobbered by a stale release.
func (r *StudentRepository) ClearMobileAccount(ctx context.Context, ext sqlx.ExtContext, studentID, accountID string) (int64, error) {
	result, err := ext.ExecContext(ctx,
		"UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE student_id = $1 AND mobile_account = $2",
		studentID, accountID)
	if err != nil {
		return 0, fmt.Errorf("clear mobile account: %w", err)
	}
	return result.RowsAffected()
}

// ClearOtherMobileRefs drops the account reference from every roster entry
// except the one being bound.
func (r *StudentRepository) ClearOtherMobileRefs(ctx context.Context, ext sqlx.ExtContext, accountID, keepStudentID string) (int64, error) {
	result, err := ext.ExecContext(ctx,
		"UPDATE student_entries SET mobile_account = NULL, updated_at = NOW() WHERE mobile_account = $1 AND student_id <> $2",
		accountID, keepStudentID)
	if err != nil {
		return 0, fmt.Errorf("clear other mobile refs: %w", err)
	}
	return result.RowsAffected()
}

// MarkExpiredPackages relabels roster entries whose package lapsed
// (sweep step 3). Entries without a package label are left alone.
func (r *StudentRepository) MarkExpiredPackages(ctx context.Context, ext sqlx.ExtContext) (int64, error) {
	result, err := ext.ExecContext(ctx, `UPDATE student_entries
SET package_label = $1, updated_at = NOW()
WHERE package_expiry < CURRENT_DATE
  AND package_label IS NOT NULL
  AND package_label <> ''
  AND package_label <> $1`,
		models.PackageExpiredLabel)
	if err != nil {
		return 0, fmt.Errorf("mark expired packages: %w", err)
	}
	return result.RowsAffected()
}

// FindDuplicateAccountIDs lists account ids referenced by more than one
// roster entry (sweep step 5 working set).
func (r *StudentRepository) FindDuplicateAccountIDs(ctx context.Context, ext sqlx.ExtContext) ([]string, error) {
	const query = `SELECT mobile_account FROM student_entries
WHERE mobile_account IS NOT NULL
GROUP BY mobile_account
HAVING COUNT(*) > 1
ORDER BY mobile_account`
	var ids []string
	if err := sqlx.SelectContext(ctx, ext, &ids, query); err != nil {
		return nil, fmt.Errorf("find duplicate account refs: %w", err)
	}
	return ids, nil
}

// ListByMobileAccount returns every roster entry referencing the account,
// most recently updated first. The sweep treats the head as the keeper
// candidate.
func (r *StudentRepository) ListByMobileAccount(ctx context.Context, ext sqlx.ExtContext, accountID string) ([]models.StudentEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM student_entries WHERE mobile_account = $1 ORDER BY updated_at DESC, student_id", studentColumns)
	var entries []models.StudentEntry
	if err := sqlx.SelectContext(ctx, ext, &entries, query, accountID); err != nil {
		return nil, fmt.Errorf("list entries by account: %w", err)
	}
	return entries, nil
}

// Count returns the roster size.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM student_entries"); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}
