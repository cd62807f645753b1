package models

import "time"

// PaymentStatus tracks the processing lifecycle of an imported payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusProcessed PaymentStatus = "PROCESSED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is one imported payment row awaiting account binding.
type Payment struct {
	ID          int64         `db:"id" json:"id"`
	StudentID   string        `db:"student_id" json:"studentId"`
	PaidAt      time.Time     `db:"paid_at" json:"paidAt"`
	Amount      float64       `db:"amount" json:"amount"`
	Status      PaymentStatus `db:"status" json:"status"`
	FailReason  *string       `db:"fail_reason" json:"failReason,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processedAt,omitempty"`
}
