package dto

// BindRequest asks the engine to bind one unused account to a student.
type BindRequest struct {
	AccountID     string `json:"accountId" binding:"required"`
	StudentID     string `json:"studentId" binding:"required"`
	PackageExpiry string `json:"packageExpiry,omitempty"`
	Source        string `json:"source,omitempty"`
	Remark        string `json:"remark,omitempty"`
}

// ReleaseRequest carries optional audit context for a release call.
type ReleaseRequest struct {
	Source string `json:"source,omitempty"`
	Remark string `json:"remark,omitempty"`
}

// RebindRequest resolves one losing entry of a known duplicate group.
type RebindRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	StudentID string `json:"studentId" binding:"required"`
}

// RebindResult reports the replacement allocation.
type RebindResult struct {
	Message      string `json:"message"`
	NewAccountID string `json:"newAccountId,omitempty"`
}
