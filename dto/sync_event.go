package dto

import (
	"time"

	"github.com/lumiohq/syncstack/internal/enum"
)

// SyncRequested asks a provider worker to run a sync for one user. Emitted
// by webhook handlers on authenticated notifications and by the scheduler
// for stale integrations.
type SyncRequested struct {
	Provider  enum.Provider `json:"provider"`
	UserID    string        `json:"userId"`
	SyncType  enum.SyncType `json:"syncType"`
	Source    string        `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncCompleted reports the terminal outcome of one sync run.
type SyncCompleted struct {
	SyncID      string        `json:"syncId"`
	Provider    enum.Provider `json:"provider"`
	UserID      string        `json:"userId"`
	Success     bool          `json:"success"`
	ItemsSynced int           `json:"itemsSynced"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}
