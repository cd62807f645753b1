package models

import "time"

// Persisted setting keys consumed by the engine.
const (
	SettingLastPaymentImport  = "last_payment_import"
	SettingLastRosterImport   = "last_roster_import"
	SettingLastMaintenanceRun = "last_maintenance_run"
	SettingZeroCostEnabled    = "zero_cost_enabled"
	SettingZeroCostExpiry     = "zero_cost_expiry"
)

// SettingTimeLayout is the storage format for timestamp-valued settings.
const SettingTimeLayout = "2006-01-02 15:04:05"

// Setting is a persisted key-value configuration flag.
type Setting struct {
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"description,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
