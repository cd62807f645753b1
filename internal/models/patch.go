package models

// AccountPatch enumerates the mutable account fields. Each field is optional:
// a nil pointer leaves the column untouched unless the matching Clear flag is
// set, which writes NULL. The fixed field set keeps change-log diffing a
// typed comparison instead of reflection over an open map.
type AccountPatch struct {
	Status *AccountStatus

	BoundStudentID    *string
	ClearBoundStudent bool

	BoundPackageExpiry *string
	ClearBoundExpiry   bool

	LifecycleStart      *string
	ClearLifecycleStart bool

	LifecycleEnd      *string
	ClearLifecycleEnd bool
}

// IsZero reports whether the patch would touch nothing.
func (p AccountPatch) IsZero() bool {
	return p.Status == nil &&
		p.BoundStudentID == nil && !p.ClearBoundStudent &&
		p.BoundPackageExpiry == nil && !p.ClearBoundExpiry &&
		p.LifecycleStart == nil && !p.ClearLifecycleStart &&
		p.LifecycleEnd == nil && !p.ClearLifecycleEnd
}

// FieldChange is one before/after pair produced by diffing a patch against
// the stored account row. Values are normalized strings (ISO dates).
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

// Account field names as recorded in the change log.
const (
	FieldStatus             = "status"
	FieldBoundStudentID     = "bound_student_id"
	FieldBoundPackageExpiry = "bound_package_expiry"
	FieldLifecycleStart     = "lifecycle_start"
	FieldLifecycleEnd       = "lifecycle_end"
)

// Diff compares the patch against the account's stored values and returns one
// FieldChange per field the patch would actually alter. No-op assignments
// (old == new) yield no entry.
func (p AccountPatch) Diff(current Account) []FieldChange {
	changes := make([]FieldChange, 0, 5)

	if p.Status != nil && *p.Status != current.Status {
		changes = append(changes, FieldChange{
			Field:    FieldStatus,
			OldValue: FormatStatus(current.Status),
			NewValue: FormatStatus(*p.Status),
		})
	}

	if next, touched := nextString(p.BoundStudentID, p.ClearBoundStudent); touched {
		if !equalString(current.BoundStudentID, next) {
			changes = append(changes, FieldChange{
				Field:    FieldBoundStudentID,
				OldValue: current.BoundStudentID,
				NewValue: next,
			})
		}
	}

	if next, touched := nextString(p.BoundPackageExpiry, p.ClearBoundExpiry); touched {
		if !equalString(FormatDate(current.BoundPackageExpiry), next) {
			changes = append(changes, FieldChange{
				Field:    FieldBoundPackageExpiry,
				OldValue: FormatDate(current.BoundPackageExpiry),
				NewValue: next,
			})
		}
	}

	if next, touched := nextString(p.LifecycleStart, p.ClearLifecycleStart); touched {
		if !equalString(FormatDate(current.LifecycleStart), next) {
			changes = append(changes, FieldChange{
				Field:    FieldLifecycleStart,
				OldValue: FormatDate(current.LifecycleStart),
				NewValue: next,
			})
		}
	}

	if next, touched := nextString(p.LifecycleEnd, p.ClearLifecycleEnd); touched {
		if !equalString(FormatDate(current.LifecycleEnd), next) {
			changes = append(changes, FieldChange{
				Field:    FieldLifecycleEnd,
				OldValue: FormatDate(current.LifecycleEnd),
				NewValue: next,
			})
		}
	}

	return changes
}

func nextString(value *string, clear bool) (*string, bool) {
	if value != nil {
		return value, true
	}
	if clear {
		return nil, true
	}
	return nil, false
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
