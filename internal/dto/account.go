package dto

// AccountImportRow is one parsed account record handed over by the import
// layer; file parsing happens upstream of the engine.
type AccountImportRow struct {
	ID          string `json:"id" binding:"required" validate:"required"`
	AccountType string `json:"accountType" binding:"required" validate:"required"`
	Status      string `json:"status,omitempty" validate:"omitempty,account_status"`
}

// ImportAccountsRequest wraps a bulk account import batch.
type ImportAccountsRequest struct {
	Rows []AccountImportRow `json:"rows" binding:"required,min=1,dive"`
}

// RecalculateRequest triggers lifecycle recomputation for one account type.
type RecalculateRequest struct {
	AccountType string `json:"accountType" binding:"required"`
}

// StudentImportRow is one roster entry handed over by the import layer.
type StudentImportRow struct {
	StudentID        string `json:"studentId" binding:"required" validate:"required"`
	FullName         string `json:"fullName" binding:"required" validate:"required"`
	Category         string `json:"category,omitempty"`
	PackageLabel     string `json:"packageLabel,omitempty"`
	MobileAccount    string `json:"mobileAccount,omitempty"`
	SecondaryAccount string `json:"secondaryAccount,omitempty"`
	TertiaryAccount  string `json:"tertiaryAccount,omitempty"`
	PackageExpiry    string `json:"packageExpiry,omitempty"`
}

// ImportStudentsRequest wraps a roster import batch.
type ImportStudentsRequest struct {
	Rows []StudentImportRow `json:"rows" binding:"required,min=1,dive"`
}
