package service

import (
	"fmt"
	"time"
)

// typeDigits is the number of leading digits of an account type label that
// encode its intake cohort (YYYYMM).
const typeDigits = 6

// TypeCohort extracts the YYYYMM cohort prefix from an account type label.
// Returns false when the label does not start with six digits.
func TypeCohort(accountType string) (string, bool) {
	if len(accountType) < typeDigits {
		return "", false
	}
	prefix := accountType[:typeDigits]
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return prefix, true
}

// NewerCohort reports whether type label a belongs to a strictly newer intake
// cohort than label b. Cohorts are fixed-width YYYYMM strings, so ordinary
// string order is chronological; a label without a cohort ranks oldest.
func NewerCohort(a, b string) bool {
	ca, _ := TypeCohort(a)
	cb, _ := TypeCohort(b)
	return ca > cb
}

// ParseTypeWindow derives the one-year lifecycle window encoded in an account
// type label: cohort 202409 serves from 2024-09-01 up to, not including,
// 2025-09-01. Labels without a cohort prefix yield an open window.
func ParseTypeWindow(accountType string) (start, end *time.Time) {
	cohort, ok := TypeCohort(accountType)
	if !ok {
		return nil, nil
	}
	parsed, err := time.ParseInLocation("200601", cohort, time.Local)
	if err != nil {
		return nil, nil
	}
	if parsed.Year() < 2000 {
		return nil, nil
	}
	s := parsed
	e := parsed.AddDate(1, 0, 0)
	return &s, &e
}

// Subscription is the plan a payment amount buys.
type Subscription struct {
	Label  string
	Expiry *time.Time
}

// SubscriptionForAmount maps a payment amount onto a plan. The monthly and
// yearly price points extend service by one month or one year from the
// payment date; any other amount records a labelled plan with no expiry.
func SubscriptionForAmount(amount, monthlyAmount, yearlyAmount float64, paidAt time.Time) Subscription {
	switch amount {
	case monthlyAmount:
		expiry := paidAt.AddDate(0, 1, 0)
		return Subscription{Label: "monthly", Expiry: &expiry}
	case yearlyAmount:
		expiry := paidAt.AddDate(1, 0, 0)
		return Subscription{Label: "yearly", Expiry: &expiry}
	default:
		return Subscription{Label: fmt.Sprintf("%g plan", amount)}
	}
}
