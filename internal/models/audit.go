package models

import (
	"encoding/json"
	"time"
)

// OperationStatus tracks execution of one logical operation batch.
type OperationStatus string

const (
	OperationStatusInProgress OperationStatus = "IN_PROGRESS"
	OperationStatusSuccess    OperationStatus = "SUCCESS"
	OperationStatusFailed     OperationStatus = "FAILED"
)

// Operation type labels. One operation log row is written per logical
// invocation (import, bind run, sweep, manual fix).
const (
	OperationAccountImport   = "ACCOUNT_IMPORT"
	OperationRosterImport    = "ROSTER_IMPORT"
	OperationPaymentImport   = "PAYMENT_IMPORT"
	OperationBindBatch       = "BIND_BATCH"
	OperationMaintenance     = "MAINTENANCE"
	OperationManualBind      = "MANUAL_BIND"
	OperationManualRelease   = "MANUAL_RELEASE"
	OperationManualRebind    = "MANUAL_REBIND"
	OperationLifecycleRecalc = "LIFECYCLE_RECALC"
	OperationIntegrityFix    = "INTEGRITY_FIX"
)

// Change type labels recorded on account change-log entries.
const (
	ChangeTypeCreate      = "CREATE"
	ChangeTypeBind        = "BIND"
	ChangeTypeRelease     = "RELEASE"
	ChangeTypeMaintenance = "MAINTENANCE"
	ChangeTypeRepair      = "REPAIR"
	ChangeTypeRecalc      = "RECALC"
	ChangeTypeImport      = "IMPORT"
)

// OperationLog is one row per logical operation batch; created at start,
// completed at the end, never deleted.
type OperationLog struct {
	ID            int64           `db:"id" json:"id"`
	OperationType string          `db:"operation_type" json:"operationType"`
	Operator      string          `db:"operator" json:"operator"`
	Detail        json.RawMessage `db:"detail" json:"detail,omitempty"`
	AffectedCount int             `db:"affected_count" json:"affectedCount"`
	Status        OperationStatus `db:"status" json:"status"`
	Remark        *string         `db:"remark" json:"remark,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// AccountChangeLog is the append-only audit record of one field-level account
// mutation, correlated to its operation batch.
type AccountChangeLog struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   string    `db:"account_id" json:"accountId"`
	ChangeType  string    `db:"change_type" json:"changeType"`
	Field       string    `db:"field" json:"field"`
	OldValue    *string   `db:"old_value" json:"oldValue,omitempty"`
	NewValue    *string   `db:"new_value" json:"newValue,omitempty"`
	StudentID   *string   `db:"student_id" json:"studentId,omitempty"`
	Source      string    `db:"source" json:"source"`
	OperationID *int64    `db:"operation_id" json:"operationId,omitempty"`
	Remark      *string   `db:"remark" json:"remark,omitempty"`
	ChangedAt   time.Time `db:"changed_at" json:"changedAt"`
}

// OperationContext travels with engine calls and is stamped onto every
// change-log entry the call produces.
type OperationContext struct {
	Source      string
	OperationID *int64
	StudentID   *string
	Remark      *string
}

// EntriesFor expands field changes into change-log rows for one account.
func (c OperationContext) EntriesFor(accountID, changeType string, changes []FieldChange) []AccountChangeLog {
	if len(changes) == 0 {
		return nil
	}
	entries := make([]AccountChangeLog, 0, len(changes))
	for _, change := range changes {
		entries = append(entries, AccountChangeLog{
			AccountID:   accountID,
			ChangeType:  changeType,
			Field:       change.Field,
			OldValue:    change.OldValue,
			NewValue:    change.NewValue,
			StudentID:   c.StudentID,
			Source:      c.Source,
			OperationID: c.OperationID,
			Remark:      c.Remark,
		})
	}
	return entries
}
