package models

import "time"

// StatusCount is one per-status slice of the account pool.
type StatusCount struct {
	Status AccountStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}

// PoolStats summarizes the account pool and payment backlog.
type PoolStats struct {
	TotalAccounts   int           `json:"totalAccounts"`
	ByStatus        []StatusCount `json:"byStatus"`
	PendingPayments int           `json:"pendingPayments"`
	GeneratedAt     time.Time     `json:"generatedAt"`
}

// DuplicateEntry is one roster entry inside a duplicate-binding group.
type DuplicateEntry struct {
	StudentID        string     `db:"student_id" json:"studentId"`
	FullName         string     `db:"full_name" json:"fullName"`
	Category         string     `db:"category" json:"category"`
	PackageExpiry    *time.Time `db:"package_expiry" json:"packageExpiry,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
	IsCurrentBinding bool       `json:"isCurrentBinding"`
}

// DuplicateBinding groups every roster entry referencing one account id.
type DuplicateBinding struct {
	AccountID          string           `json:"accountId"`
	AccountStatus      *AccountStatus   `json:"accountStatus,omitempty"`
	BoundStudentID     *string          `json:"boundStudentId,omitempty"`
	BoundPackageExpiry *time.Time       `json:"boundPackageExpiry,omitempty"`
	Entries            []DuplicateEntry `json:"entries"`
}

// IntegrityFixCounts reports the repairs applied by the integrity pass.
type IntegrityFixCounts struct {
	OrphanBindings int `json:"orphanBindings"`
	StaleUnused    int `json:"staleUnused"`
	UnboundUsed    int `json:"unboundUsed"`
}
