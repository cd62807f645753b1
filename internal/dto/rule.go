package dto

// UpsertRuleRequest creates or replaces one account-type rule. Dates use the
// YYYY-MM-DD form.
type UpsertRuleRequest struct {
	AccountType     string `json:"accountType" binding:"required"`
	AllowBinding    *bool  `json:"allowBinding,omitempty"`
	LifecycleMonths *int   `json:"lifecycleMonths,omitempty"`
	FixedStart      string `json:"fixedStart,omitempty"`
	FixedEnd        string `json:"fixedEnd,omitempty"`
}

// UpdateSettingRequest replaces one persisted setting value.
type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}
