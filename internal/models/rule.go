package models

import "time"

// AccountTypeRule is the per-type binding and lifecycle policy. Absence of a
// stored rule means the default policy: always bindable, lifecycle derived
// from the type label alone.
type AccountTypeRule struct {
	AccountType     string     `db:"account_type" json:"accountType"`
	AllowBinding    bool       `db:"allow_binding" json:"allowBinding"`
	LifecycleMonths *int       `db:"lifecycle_months" json:"lifecycleMonths,omitempty"`
	FixedStart      *time.Time `db:"fixed_start" json:"fixedStart,omitempty"`
	FixedEnd        *time.Time `db:"fixed_end" json:"fixedEnd,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// DefaultRule returns the first-class "no custom rule" policy for a type, so
// callers never null-check rule lookups.
func DefaultRule(accountType string) AccountTypeRule {
	return AccountTypeRule{AccountType: accountType, AllowBinding: true}
}

// IsDefault reports whether the rule carries no overrides.
func (r AccountTypeRule) IsDefault() bool {
	return r.AllowBinding && r.LifecycleMonths == nil && r.FixedStart == nil && r.FixedEnd == nil
}
