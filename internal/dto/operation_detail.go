package dto

// ImportSummary describes the outcome of a bulk import batch.
type ImportSummary struct {
	SourceRows int      `json:"sourceRows"`
	Processed  int      `json:"processed"`
	Skipped    int      `json:"skipped,omitempty"`
	Failed     int      `json:"failed,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// SweepSummary carries the per-step counters of one maintenance run.
type SweepSummary struct {
	Released            int `json:"released"`
	Expired             int `json:"expired"`
	Converted           int `json:"converted"`
	RosterExpired       int `json:"rosterExpired"`
	SubscriptionExpired int `json:"subscriptionExpired"`
	DuplicateGroups     int `json:"duplicateGroups"`
	Rebound             int `json:"rebound"`
	Cleared             int `json:"cleared"`
}

// Total sums the account-touching counters of a sweep.
func (s SweepSummary) Total() int {
	return s.Released + s.Expired + s.Converted + s.SubscriptionExpired + s.Rebound + s.Cleared
}

// BindBatchSummary describes one payment-processing bind run.
type BindBatchSummary struct {
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	ExportFile string `json:"exportFile,omitempty"`
}

// OperationDetail is the typed union stored in an operation log's detail
// column; exactly one branch is populated per operation kind.
type OperationDetail struct {
	Import    *ImportSummary    `json:"import,omitempty"`
	Sweep     *SweepSummary     `json:"sweep,omitempty"`
	BindBatch *BindBatchSummary `json:"bindBatch,omitempty"`
}
