package interfaces

import (
	"context"
	"time"

	"github.com/lumiohq/syncstack/internal/enum"
	"github.com/lumiohq/syncstack/internal/models"
)

// SyncStateRepository persists the durable sync state rows, one per
// (userID, provider) pair.
type SyncStateRepository interface {
	GetSyncState(ctx context.Context, userID string, provider enum.Provider) (*models.IntegrationSyncState, error)
	SaveSyncState(ctx context.Context, state *models.IntegrationSyncState) error
	UpdateStatus(ctx context.Context, userID string, provider enum.Provider, status enum.SyncStatus, lastError string) error
	SaveSyncToken(ctx context.Context, userID string, provider enum.Provider, token string) error
	DeleteSyncState(ctx context.Context, userID string, provider enum.Provider) error
	GetStaleStates(ctx context.Context, olderThan time.Time) ([]models.IntegrationSyncState, error)
}

// IntegrationRepository persists user/provider integration records.
type IntegrationRepository interface {
	GetIntegration(ctx context.Context, userID string, provider enum.Provider) (*models.Integration, error)
	GetEnabledIntegrations(ctx context.Context) ([]models.Integration, error)
	SaveIntegration(ctx context.Context, integration *models.Integration) error
	DeleteIntegration(ctx context.Context, userID string, provider enum.Provider) error
}

// SyncCoordinator guards sync runs per (user, provider) and tracks their
// checkpoints and progress.
type SyncCoordinator interface {
	AcquireSyncLock(ctx context.Context, userID string, provider enum.Provider, ttl time.Duration) (bool, error)
	ExecuteWithLock(ctx context.Context, userID string, provider enum.Provider, ttl time.Duration, fn func(ctx context.Context) error) error
	StartSync(ctx context.Context, config models.SyncConfig) (string, error)
	UpdateSyncProgress(ctx context.Context, userID string, provider enum.Provider, update func(p *models.SyncProgress)) error
	GetSyncProgress(ctx context.Context, userID string, provider enum.Provider) (*models.SyncProgress, error)
	CompleteSync(ctx context.Context, syncID string, config models.SyncConfig, result *models.SyncResult) error
	IsSyncNeeded(ctx context.Context, userID string, provider enum.Provider, maxAge time.Duration) (bool, error)
	RecordSyncToken(ctx context.Context, userID string, provider enum.Provider, token string) error
	GetSyncToken(ctx context.Context, userID string, provider enum.Provider) (string, error)
}

// SyncWorker is implemented once per provider, outside this layer. The
// runner drives it under the sync lock: incremental runs get the durably
// recorded token, and a worker that finds its token rejected returns
// ErrInvalidCheckpoint to request a full-sync fallback.
type SyncWorker interface {
	Provider() enum.Provider
	FullSync(ctx context.Context, config models.SyncConfig) (*models.SyncResult, error)
	IncrementalSync(ctx context.Context, config models.SyncConfig, syncToken string) (*models.SyncResult, error)
}
