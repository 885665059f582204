package models

import (
	"time"

	"github.com/lumiohq/syncstack/internal/enum"
)

// SyncConfig identifies one synchronization run. It is built per invocation
// and never persisted.
type SyncConfig struct {
	Provider  enum.Provider `json:"provider"`
	UserID    string        `json:"userId"`
	SyncType  enum.SyncType `json:"syncType"`
	SyncToken string        `json:"syncToken,omitempty"`
}

// SyncError records one item-level failure inside a run.
type SyncError struct {
	ItemID  string `json:"itemId,omitempty"`
	Message string `json:"message"`
}

// SyncResult is the terminal report of one sync run.
type SyncResult struct {
	Success      bool        `json:"success"`
	ItemsSynced  int         `json:"itemsSynced"`
	NewSyncToken string      `json:"newSyncToken,omitempty"`
	Errors       []SyncError `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// SyncProgress is the ephemeral, store-backed progress record for an
// in-flight run. It is advisory: it expires on its own and its loss never
// fails a sync.
type SyncProgress struct {
	Status         enum.SyncStatus `json:"status"`
	ItemsProcessed int             `json:"itemsProcessed"`
	TotalItems     *int            `json:"totalItems,omitempty"`
	CurrentPhase   string          `json:"currentPhase,omitempty"`
	StartedAt      time.Time       `json:"startedAt"`
	LastUpdateAt   time.Time       `json:"lastUpdateAt"`
}
