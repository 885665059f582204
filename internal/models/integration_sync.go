package models

import (
	"time"

	"github.com/lumiohq/syncstack/internal/enum"
)

// IntegrationSyncState is the durable synchronization state for one
// (user, provider) pair: the status of the last run and the provider-issued
// checkpoint the next incremental run resumes from. Exactly one row exists
// per pair.
type IntegrationSyncState struct {
	ID         string          `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID     string          `gorm:"column:user_id;type:varchar(50);uniqueIndex:idx_user_provider;not null"`
	Provider   enum.Provider   `gorm:"column:provider;type:varchar(50);uniqueIndex:idx_user_provider;not null"`
	Status     enum.SyncStatus `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	SyncToken  string          `gorm:"column:sync_token;type:text"`
	LastSyncAt *time.Time      `gorm:"column:last_sync_at;type:timestamp"`
	LastError  string          `gorm:"column:last_error;type:text"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (IntegrationSyncState) TableName() string {
	return "integration_sync_states"
}
