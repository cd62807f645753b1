package models

import "time"

// PackageExpiredLabel is the sentinel written onto roster entries whose paid
// package has lapsed; purely informational on the roster side.
const PackageExpiredLabel = "EXPIRED"

// StudentEntry is one row of the student roster, including up to three
// carrier-account references. One of them (the mobile account) is the field
// the binding engine manages; the others arrive via roster import only.
type StudentEntry struct {
	StudentID        string     `db:"student_id" json:"studentId"`
	PackageLabel     *string    `db:"package_label" json:"packageLabel,omitempty"`
	FullName         string     `db:"full_name" json:"fullName"`
	Category         string     `db:"category" json:"category"`
	MobileAccount    *string    `db:"mobile_account" json:"mobileAccount,omitempty"`
	SecondaryAccount *string    `db:"secondary_account" json:"secondaryAccount,omitempty"`
	TertiaryAccount  *string    `db:"tertiary_account" json:"tertiaryAccount,omitempty"`
	PackageExpiry    *time.Time `db:"package_expiry" json:"packageExpiry,omitempty"`
	ImportedAt       time.Time  `db:"imported_at" json:"importedAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}
