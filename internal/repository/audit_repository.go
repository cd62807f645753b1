package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// OperationLogRepository writes and reads the per-batch operation trail.
type OperationLogRepository struct {
	db *sqlx.DB
}

func NewOperationLogRepository(db *sqlx.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

const operationColumns = `id, operation_type, operator, detail, affected_count, status, remark, created_at`

// Start opens an operation batch as IN_PROGRESS and returns its id.
func (r *OperationLogRepository) Start(ctx context.Context, operationType, operator string, remark *string) (int64, error) {
	const query = `INSERT INTO operation_logs (operation_type, operator, status, remark, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var id int64
	err := r.db.GetContext(ctx, &id, query, operationType, operator,
		string(models.OperationStatusInProgress), remark, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("start operation log: %w", err)
	}
	return id, nil
}

// Complete finalizes a batch with its outcome and serialized detail.
func (r *OperationLogRepository) Complete(ctx context.Context, id int64, status models.OperationStatus, affected int, detail interface{}) error {
	var raw json.RawMessage
	if detail != nil {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("encode operation detail: %w", err)
		}
		raw = encoded
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE operation_logs SET status = $1, affected_count = $2, detail = $3 WHERE id = $4",
		string(status), affected, raw, id)
	if err != nil {
		return fmt.Errorf("complete operation log: %w", err)
	}
	return nil
}

// Recent returns the newest operation batches, optionally filtered by type.
func (r *OperationLogRepository) Recent(ctx context.Context, operationType string, limit int) ([]models.OperationLog, error) {
	var (
		logs  []models.OperationLog
		err   error
		query string
	)
	if operationType != "" {
		query = fmt.Sprintf("SELECT %s FROM operation_logs WHERE operation_type = $1 ORDER BY id DESC LIMIT $2", operationColumns)
		err = r.db.SelectContext(ctx, &logs, query, operationType, limit)
	} else {
		query = fmt.Sprintf("SELECT %s FROM operation_logs ORDER BY id DESC LIMIT $1", operationColumns)
		err = r.db.SelectContext(ctx, &logs, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list operation logs: %w", err)
	}
	return logs, nil
}

// ChangeLogRepository appends and reads the field-level account audit trail.
// Rows are never updated or deleted.
type ChangeLogRepository struct {
	db *sqlx.DB
}

func NewChangeLogRepository(db *sqlx.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

const changeColumns = `id, account_id, change_type, field, old_value, new_value, student_id, source, operation_id, remark, changed_at`

// Append writes change-log entries in one transaction.
func (r *ChangeLogRepository) Append(ctx context.Context, entries []models.AccountChangeLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin change log tx: %w", err)
	}
	const query = `INSERT INTO account_change_logs
	(account_id, change_type, field, old_value, new_value, student_id, source, operation_id, remark, changed_at)
	VALUES (:account_id, :change_type, :field, :old_value, :new_value, :student_id, :source, :operation_id, :remark, :changed_at)`
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ChangedAt.IsZero() {
			entries[i].ChangedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, query, entries[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append change log for %s: %w", entries[i].AccountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change log tx: %w", err)
	}
	return nil
}

// History returns an account's change trail, newest first.
func (r *ChangeLogRepository) History(ctx context.Context, accountID string, limit int) ([]models.AccountChangeLog, error) {
	query := fmt.Sprintf("SELECT %s FROM account_change_logs WHERE account_id = $1 ORDER BY id DESC LIMIT $2", changeColumns)
	var entries []models.AccountChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("list change history: %w", err)
	}
	return entries, nil
}

// ByStudent returns the change trail for one student across accounts.
func (r *ChangeLogRepository) ByStudent(ctx context.Context, studentID string, limit int) ([]models.AccountChangeLog, error) {
	query := fmt.Sprintf("SELECT %s FROM account_change_logs WHERE student_id = $1 ORDER BY id DESC LIMIT $2", changeColumns)
	var entries []models.AccountChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list changes by student: %w", err)
	}
	return entries, nil
}

// Range returns changes inside a time window, oldest first.
func (r *ChangeLogRepository) Range(ctx context.Context, from, to time.Time, limit int) ([]models.AccountChangeLog, error) {
	query := fmt.Sprintf("SELECT %s FROM account_change_logs WHERE changed_at >= $1 AND changed_at < $2 ORDER BY id LIMIT $3", changeColumns)
	var entries []models.AccountChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, from, to, limit); err != nil {
		return nil, fmt.Errorf("list changes in window: %w", err)
	}
	return entries, nil
}

// ByOperation returns every change produced by one operation batch.
func (r *ChangeLogRepository) ByOperation(ctx context.Context, operationID int64) ([]models.AccountChangeLog, error) {
	query := fmt.Sprintf("SELECT %s FROM account_change_logs WHERE operation_id = $1 ORDER BY id", changeColumns)
	var entries []models.AccountChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, operationID); err != nil {
		return nil, fmt.Errorf("list changes by operation: %w", err)
	}
	return entries, nil
}
