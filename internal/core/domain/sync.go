package domain

import "time"

// SyncFailure records one item that could not be reconciled and will be retried.
type SyncFailure struct {
	EntryID int64  `json:"entry_id,omitempty"`
	Key     string `json:"key"`
	Err     string `json:"error"`
}

// SyncReport summarises one reconciliation run.
type SyncReport struct {
	Pushed     int           `json:"pushed"`
	Pulled     int           `json:"pulled"`
	Updated    int           `json:"updated"`
	Failures   []SyncFailure `json:"failures,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Partial reports whether any item failed.
func (r *SyncReport) Partial() bool {
	return len(r.Failures) > 0
}

// Fail appends a failure for the given entry and remote key.
func (r *SyncReport) Fail(entryID int64, key string, err error) {
	r.Failures = append(r.Failures, SyncFailure{EntryID: entryID, Key: key, Err: err.Error()})
}
