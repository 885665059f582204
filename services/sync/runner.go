package sync

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/tracing"
)

// Runner drives a provider's SyncWorker through a full lifecycle: lock,
// StartSync, worker execution, CompleteSync, unlock.
type Runner struct {
	coordinator *Coordinator
	log         logger.Logger
}

func NewRunner(coordinator *Coordinator, log logger.Logger) *Runner {
	return &Runner{
		coordinator: coordinator,
		log:         log,
	}
}

// Run executes one sync for the pair described by config. A concurrent run
// holding the lock surfaces as ErrLockContention.
//
// Incremental runs always start from the durably recorded token, never from
// anything a caller or webhook carried: a pair with no recorded token gets
// a full sync, and a worker that reports ErrInvalidCheckpoint gets exactly
// one full-sync fallback within the same run.
func (r *Runner) Run(ctx context.Context, worker interfaces.SyncWorker, config models.SyncConfig, lockTTL time.Duration) (*models.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Runner.Run")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, config.Provider)
	tracing.TagUserId(span, config.UserID)
	span.SetTag("sync.type", config.SyncType.String())

	var result *models.SyncResult

	err := r.coordinator.ExecuteWithLock(ctx, config.UserID, config.Provider, lockTTL, func(ctx context.Context) error {
		var runErr error
		result, runErr = r.runLocked(ctx, worker, config)
		return runErr
	})
	if err != nil {
		if !errors.Is(err, syncerrors.ErrLockContention) {
			tracing.TraceErr(span, err)
		}
		return result, err
	}
	return result, nil
}

func (r *Runner) runLocked(ctx context.Context, worker interfaces.SyncWorker, config models.SyncConfig) (*models.SyncResult, error) {
	syncID, err := r.coordinator.StartSync(ctx, config)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := r.execute(ctx, worker, config)
	if err != nil {
		failed := &models.SyncResult{
			Success:  false,
			Duration: time.Since(started),
			Errors:   []models.SyncError{{Message: err.Error()}},
		}
		if completeErr := r.coordinator.CompleteSync(ctx, syncID, config, failed); completeErr != nil {
			r.log.Errorf("Failed to record sync failure for %s: %v", syncID, completeErr)
		}
		return failed, err
	}

	result.Duration = time.Since(started)
	if err := r.coordinator.CompleteSync(ctx, syncID, config, result); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) execute(ctx context.Context, worker interfaces.SyncWorker, config models.SyncConfig) (*models.SyncResult, error) {
	if config.SyncType != enum.SyncTypeIncremental {
		return worker.FullSync(ctx, config)
	}

	token, err := r.coordinator.GetSyncToken(ctx, config.UserID, config.Provider)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sync token")
	}
	if token == "" {
		r.log.Infof("No sync token recorded for %s:%s, running full sync", config.Provider, config.UserID)
		return worker.FullSync(ctx, config)
	}

	result, err := worker.IncrementalSync(ctx, config, token)
	if errors.Is(err, syncerrors.ErrInvalidCheckpoint) {
		r.log.Warnf("Sync token for %s:%s rejected by provider, falling back to full sync", config.Provider, config.UserID)
		return worker.FullSync(ctx, config)
	}
	return result, err
}
