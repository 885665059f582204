package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/lumiohq/syncstack/dto"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/tracing"
	"github.com/lumiohq/syncstack/internal/utils"
)

const (
	lockKeyPrefix     = "lock:"
	progressKeyPrefix = "sync:progress:"

	// progressTTL bounds how long a progress record of a crashed sync can
	// linger in the store.
	progressTTL = time.Hour

	// DefaultLockTTL should comfortably exceed the expected duration of a
	// sync run; a crashed holder blocks others for at most this long.
	DefaultLockTTL = 10 * time.Minute
)

// Coordinator serializes sync runs per (user, provider) through the shared
// store and tracks their durable checkpoints and ephemeral progress.
//
// The lock value is a random owner token: release is check-and-delete, so a
// holder whose TTL lapsed cannot release a lock someone else has since
// acquired.
type Coordinator struct {
	store  interfaces.KVStore
	repo   interfaces.SyncStateRepository
	events interfaces.EventPublisher // nil when the bus is not configured
	log    logger.Logger

	ownersMutex sync.Mutex
	owners      map[string]string // lock key -> owner token held by this process
}

func NewCoordinator(store interfaces.KVStore, repo interfaces.SyncStateRepository, events interfaces.EventPublisher, log logger.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		repo:   repo,
		events: events,
		log:    log,
		owners: make(map[string]string),
	}
}

func lockKey(userID string, provider enum.Provider) string {
	return fmt.Sprintf("%s%s:%s", lockKeyPrefix, provider, userID)
}

func progressKey(userID string, provider enum.Provider) string {
	return fmt.Sprintf("%s%s:%s", progressKeyPrefix, provider, userID)
}

// AcquireSyncLock attempts to take exclusive ownership of the pair's sync
// slot. The store failing makes this fail closed: a duplicate sync is worse
// than a delayed one.
func (c *Coordinator) AcquireSyncLock(ctx context.Context, userID string, provider enum.Provider, ttl time.Duration) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.AcquireSyncLock")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	key := lockKey(userID, provider)
	token := uuid.NewString()

	acquired, err := c.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(syncerrors.ErrStoreUnavailable, err.Error())
	}
	if acquired {
		c.ownersMutex.Lock()
		c.owners[key] = token
		c.ownersMutex.Unlock()
	}

	span.SetTag("lock.acquired", acquired)
	return acquired, nil
}

// ReleaseSyncLock releases a lock this process acquired. A lock whose TTL
// expired and was re-acquired elsewhere is left alone.
func (c *Coordinator) ReleaseSyncLock(ctx context.Context, userID string, provider enum.Provider) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.ReleaseSyncLock")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	key := lockKey(userID, provider)

	c.ownersMutex.Lock()
	token, held := c.owners[key]
	delete(c.owners, key)
	c.ownersMutex.Unlock()

	if !held {
		return nil
	}

	released, err := c.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to release sync lock")
	}
	if !released {
		c.log.Warnf("Sync lock for %s:%s expired before release; a concurrent run may have started", provider, userID)
	}
	return nil
}

// ExecuteWithLock runs fn while holding the pair's sync lock, releasing it
// whether fn succeeds or fails. A held lock surfaces as ErrLockContention;
// callers skip or reschedule, they never queue.
func (c *Coordinator) ExecuteWithLock(ctx context.Context, userID string, provider enum.Provider, ttl time.Duration, fn func(ctx context.Context) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.ExecuteWithLock")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	acquired, err := c.AcquireSyncLock(ctx, userID, provider, ttl)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !acquired {
		span.SetTag("lock.contention", true)
		return syncerrors.ErrLockContention
	}

	defer func() {
		if releaseErr := c.ReleaseSyncLock(ctx, userID, provider); releaseErr != nil {
			tracing.TraceErr(span, releaseErr)
			c.log.Errorf("Failed to release sync lock for %s:%s: %v", provider, userID, releaseErr)
		}
	}()

	return fn(ctx)
}

// StartSync marks the pair as SYNCING and creates the progress record. Any
// initialization failure marks the row FAILED and is returned.
func (c *Coordinator) StartSync(ctx context.Context, config models.SyncConfig) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.StartSync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, config.Provider)
	tracing.TagUserId(span, config.UserID)
	span.SetTag("sync.type", config.SyncType.String())

	syncID := utils.GenerateNanoIDWithPrefix("sync", 21)
	span.SetTag("sync.id", syncID)

	if err := c.repo.UpdateStatus(ctx, config.UserID, config.Provider, enum.SyncStatusSyncing, ""); err != nil {
		tracing.TraceErr(span, err)
		c.markFailed(ctx, config, err)
		return "", errors.Wrap(err, "failed to mark sync as started")
	}

	if err := c.initProgress(ctx, config); err != nil {
		tracing.TraceErr(span, err)
		c.markFailed(ctx, config, err)
		return "", errors.Wrap(err, "failed to initialize sync progress")
	}

	c.log.Infof("Started %s sync %s for %s:%s", config.SyncType, syncID, config.Provider, config.UserID)
	return syncID, nil
}

func (c *Coordinator) markFailed(ctx context.Context, config models.SyncConfig, cause error) {
	if err := c.repo.UpdateStatus(ctx, config.UserID, config.Provider, enum.SyncStatusFailed, cause.Error()); err != nil {
		c.log.Errorf("Failed to mark sync as failed for %s:%s: %v", config.Provider, config.UserID, err)
	}
}

// CompleteSync records the terminal outcome of a run: durable status, the
// new checkpoint when one was issued, and the removal of the progress
// record. Event publishing is best-effort and never changes the outcome.
func (c *Coordinator) CompleteSync(ctx context.Context, syncID string, config models.SyncConfig, result *models.SyncResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.CompleteSync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, config.Provider)
	tracing.TagUserId(span, config.UserID)
	span.SetTag("sync.id", syncID)
	span.SetTag("sync.success", result.Success)

	status := enum.SyncStatusCompleted
	lastError := ""
	if !result.Success {
		status = enum.SyncStatusFailed
		lastError = joinSyncErrors(result.Errors)
	}

	if err := c.repo.UpdateStatus(ctx, config.UserID, config.Provider, status, lastError); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to record sync outcome")
	}

	if result.NewSyncToken != "" {
		if err := c.repo.SaveSyncToken(ctx, config.UserID, config.Provider, result.NewSyncToken); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrap(err, "failed to record sync token")
		}
	}

	if err := c.store.Del(ctx, progressKey(config.UserID, config.Provider)); err != nil {
		// the record self-expires; losing the delete is not an error
		c.log.Warnf("Failed to delete progress record for %s:%s: %v", config.Provider, config.UserID, err)
	}

	c.publishCompleted(ctx, syncID, config, result, lastError)

	c.log.Infof("Completed sync %s for %s:%s: success=%t items=%d duration=%s",
		syncID, config.Provider, config.UserID, result.Success, result.ItemsSynced, result.Duration)
	return nil
}

func (c *Coordinator) publishCompleted(ctx context.Context, syncID string, config models.SyncConfig, result *models.SyncResult, lastError string) {
	if c.events == nil {
		return
	}
	event := dto.SyncCompleted{
		SyncID:      syncID,
		Provider:    config.Provider,
		UserID:      config.UserID,
		Success:     result.Success,
		ItemsSynced: result.ItemsSynced,
		Duration:    result.Duration,
		Error:       lastError,
		Timestamp:   utils.Now(),
	}
	if err := c.events.PublishSyncCompleted(ctx, event); err != nil {
		c.log.Warnf("Failed to publish sync completed event for %s: %v", syncID, err)
	}
}

func joinSyncErrors(syncErrors []models.SyncError) string {
	if len(syncErrors) == 0 {
		return "sync failed"
	}
	messages := make([]string, 0, len(syncErrors))
	for _, e := range syncErrors {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}

// IsSyncNeeded reports whether the pair has never synced successfully or
// its last success is older than maxAge. Schedulers consult this; nothing
// enforces it internally.
func (c *Coordinator) IsSyncNeeded(ctx context.Context, userID string, provider enum.Provider, maxAge time.Duration) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.IsSyncNeeded")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	state, err := c.repo.GetSyncState(ctx, userID, provider)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	if state == nil || state.LastSyncAt == nil {
		span.SetTag("sync.needed", true)
		return true, nil
	}

	needed := time.Since(*state.LastSyncAt) > maxAge
	span.SetTag("sync.needed", needed)
	return needed, nil
}

// RecordSyncToken durably stores the provider-issued checkpoint.
func (c *Coordinator) RecordSyncToken(ctx context.Context, userID string, provider enum.Provider, token string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.RecordSyncToken")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	return c.repo.SaveSyncToken(ctx, userID, provider, token)
}

// GetSyncToken returns the durably recorded checkpoint, empty when the pair
// has none yet.
func (c *Coordinator) GetSyncToken(ctx context.Context, userID string, provider enum.Provider) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.GetSyncToken")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	state, err := c.repo.GetSyncState(ctx, userID, provider)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.SyncToken, nil
}

var _ interfaces.SyncCoordinator = (*Coordinator)(nil)
