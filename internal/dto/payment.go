package dto

import "time"

// PaymentRow is one parsed payment record from the import layer.
type PaymentRow struct {
	StudentID string    `json:"studentId" binding:"required"`
	PaidAt    time.Time `json:"paidAt" binding:"required"`
	Amount    float64   `json:"amount" binding:"required,gt=0"`
}

// ImportPaymentsRequest wraps a payment import batch.
type ImportPaymentsRequest struct {
	Rows []PaymentRow `json:"rows" binding:"required,min=1,dive"`
}

// ProcessResult reports one payment-binding run.
type ProcessResult struct {
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Bindings  []BindingExportRow `json:"bindings,omitempty"`
	CSVFile   string             `json:"csvFile,omitempty"`
	PDFFile   string             `json:"pdfFile,omitempty"`
}

// BindingExportRow is one line of a binding export file.
type BindingExportRow struct {
	StudentID     string  `json:"studentId"`
	AccountID     string  `json:"accountId"`
	PackageLabel  string  `json:"packageLabel"`
	PackageExpiry string  `json:"packageExpiry"`
	Amount        float64 `json:"amount"`
}
