package sync

import (
	"context"
	"encoding/json"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/tracing"
	"github.com/lumiohq/syncstack/internal/utils"
)

func (c *Coordinator) initProgress(ctx context.Context, config models.SyncConfig) error {
	now := utils.Now()
	progress := models.SyncProgress{
		Status:       enum.SyncStatusSyncing,
		CurrentPhase: "starting",
		StartedAt:    now,
		LastUpdateAt: now,
	}
	return c.writeProgress(ctx, config.UserID, config.Provider, &progress)
}

func (c *Coordinator) writeProgress(ctx context.Context, userID string, provider enum.Provider, progress *models.SyncProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return errors.Wrap(err, "failed to serialize sync progress")
	}
	return c.store.Set(ctx, progressKey(userID, provider), string(payload), progressTTL)
}

// UpdateSyncProgress applies update to the pair's live progress record and
// refreshes its expiry. A missing record is reported as
// ErrProgressNotFound: the record is advisory and may have expired, so
// callers treat this as informational, not as a sync failure.
func (c *Coordinator) UpdateSyncProgress(ctx context.Context, userID string, provider enum.Provider, update func(progress *models.SyncProgress)) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.UpdateSyncProgress")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	progress, err := c.readProgress(ctx, userID, provider)
	if err != nil {
		if !errors.Is(err, syncerrors.ErrProgressNotFound) {
			tracing.TraceErr(span, err)
		}
		return err
	}

	update(progress)
	progress.LastUpdateAt = utils.Now()

	if err := c.writeProgress(ctx, userID, provider, progress); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// GetSyncProgress returns the pair's live progress record, or
// ErrProgressNotFound when no sync is running or the record expired.
func (c *Coordinator) GetSyncProgress(ctx context.Context, userID string, provider enum.Provider) (*models.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Coordinator.GetSyncProgress")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)

	progress, err := c.readProgress(ctx, userID, provider)
	if err != nil {
		if !errors.Is(err, syncerrors.ErrProgressNotFound) {
			tracing.TraceErr(span, err)
		}
		return nil, err
	}
	return progress, nil
}

func (c *Coordinator) readProgress(ctx context.Context, userID string, provider enum.Provider) (*models.SyncProgress, error) {
	value, found, err := c.store.Get(ctx, progressKey(userID, provider))
	if err != nil {
		return nil, errors.Wrap(syncerrors.ErrStoreUnavailable, err.Error())
	}
	if !found {
		return nil, syncerrors.ErrProgressNotFound
	}

	var progress models.SyncProgress
	if err := json.Unmarshal([]byte(value), &progress); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize sync progress")
	}
	return &progress, nil
}
