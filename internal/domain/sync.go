package domain

import "time"

// SyncLockInfo is the cross-session lock token a replica holds. The remote
// store offers no locking primitive today, so sessions hand out a zero
// value; the orchestrating caller must serialize sessions itself.
type SyncLockInfo struct {
	Transaction string        `json:"transaction,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// SyncRunStatus is the terminal disposition of one sync cycle.
type SyncRunStatus string

const (
	RunCommitted SyncRunStatus = "committed"
	RunCancelled SyncRunStatus = "cancelled"
)

// SyncRun records one completed sync cycle for the history endpoint.
type SyncRun struct {
	ID         string        `json:"id"`
	ServerID   string        `json:"server_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     SyncRunStatus `json:"status"`
	Pulled     int           `json:"pulled"`
	Pushed     int           `json:"pushed"`
	Deleted    int           `json:"deleted"`
	Revision   int           `json:"revision"`
	Error      string        `json:"error,omitempty"`
}
