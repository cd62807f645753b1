package models

import (
	"time"
)

// AccountStatus enumerates the lifecycle states of a pool account.
type AccountStatus string

const (
	// AccountStatusUnused marks an account in the free pool.
	AccountStatusUnused AccountStatus = "UNUSED"
	// AccountStatusUsed marks an account currently bound to a student.
	AccountStatusUsed AccountStatus = "USED"
	// AccountStatusExpired marks an account whose lifecycle window has closed.
	AccountStatusExpired AccountStatus = "EXPIRED"
	// AccountStatusExpiredBound marks a lifecycle-ended account whose bound
	// package has not yet expired; service continues until it does.
	AccountStatusExpiredBound AccountStatus = "EXPIRED_BOUND"
	// AccountStatusSuspended marks accounts discovered with an already-closed
	// lifecycle (or via roster sync with unknown type).
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account is one carrier-provided network access account in the pool.
type Account struct {
	ID                 string        `db:"id" json:"id"`
	AccountType        string        `db:"account_type" json:"accountType"`
	Status             AccountStatus `db:"status" json:"status"`
	LifecycleStart     *time.Time    `db:"lifecycle_start" json:"lifecycleStart,omitempty"`
	LifecycleEnd       *time.Time    `db:"lifecycle_end" json:"lifecycleEnd,omitempty"`
	BoundStudentID     *string       `db:"bound_student_id" json:"boundStudentId,omitempty"`
	BoundPackageExpiry *time.Time    `db:"bound_package_expiry" json:"boundPackageExpiry,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`
}

// AccountDetail joins the bound student's display name onto the account row.
type AccountDetail struct {
	Account
	StudentName *string `db:"student_name" json:"studentName,omitempty"`
}

// AccountFilter narrows account searches.
type AccountFilter struct {
	Status      AccountStatus
	AccountType string
	StudentID   string
}

// DateOnly is the wire/storage format for lifecycle and expiry dates.
const DateOnly = "2006-01-02"

// FormatDate renders a nullable date for change-log storage.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateOnly)
	return &s
}

// FormatStatus renders a status for change-log storage.
func FormatStatus(s AccountStatus) *string {
	v := string(s)
	return &v
}
