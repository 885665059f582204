package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/tracing"
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// GetSyncState retrieves the durable sync state for a (user, provider) pair
func (r *syncStateRepository) GetSyncState(ctx context.Context, userID string, provider enum.Provider) (*models.IntegrationSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)

	var state models.IntegrationSyncState
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&state)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // No sync state yet
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get sync state: %w", result.Error)
	}

	return &state, nil
}

// SaveSyncState upserts the sync state row for a (user, provider) pair
func (r *syncStateRepository) SaveSyncState(ctx context.Context, state *models.IntegrationSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.SaveSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, state.Provider)

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationSyncState{}).
		Where("user_id = ? AND provider = ?", state.UserID, state.Provider).
		Updates(map[string]interface{}{
			"status":       state.Status,
			"sync_token":   state.SyncToken,
			"last_sync_at": state.LastSyncAt,
			"last_error":   state.LastError,
			"updated_at":   time.Now(),
		})

	// If no record was updated, create a new one
	if result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(state)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save sync state: %w", result.Error)
	}

	return nil
}

// UpdateStatus moves the row to the given status, creating the row if this
// is the pair's first sync
func (r *syncStateRepository) UpdateStatus(ctx context.Context, userID string, provider enum.Provider, status enum.SyncStatus, lastError string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)
	span.SetTag("status", status.String())

	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if status == enum.SyncStatusCompleted {
		updates["last_sync_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&models.IntegrationSyncState{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(updates)

	if result.RowsAffected == 0 {
		state := &models.IntegrationSyncState{
			UserID:    userID,
			Provider:  provider,
			Status:    status,
			LastError: lastError,
		}
		if status == enum.SyncStatusCompleted {
			now := time.Now()
			state.LastSyncAt = &now
		}
		result = r.db.WithContext(ctx).Create(state)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update sync status: %w", result.Error)
	}

	return nil
}

// SaveSyncToken records the provider-issued checkpoint the next incremental
// sync resumes from
func (r *syncStateRepository) SaveSyncToken(ctx context.Context, userID string, provider enum.Provider, token string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.SaveSyncToken")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)

	result := r.db.WithContext(ctx).
		Model(&models.IntegrationSyncState{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]interface{}{
			"sync_token": token,
			"updated_at": time.Now(),
		})

	if result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(&models.IntegrationSyncState{
			UserID:    userID,
			Provider:  provider,
			Status:    enum.SyncStatusPending,
			SyncToken: token,
		})
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save sync token: %w", result.Error)
	}

	return nil
}

// DeleteSyncState removes the row for a (user, provider) pair
func (r *syncStateRepository) DeleteSyncState(ctx context.Context, userID string, provider enum.Provider) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.DeleteSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)

	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.IntegrationSyncState{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete sync state: %w", result.Error)
	}

	return nil
}

// GetStaleStates returns rows whose last successful sync is missing or older
// than the given cutoff, for the scheduler to re-dispatch
func (r *syncStateRepository) GetStaleStates(ctx context.Context, olderThan time.Time) ([]models.IntegrationSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetStaleStates")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var states []models.IntegrationSyncState
	err := r.db.WithContext(ctx).
		Where("last_sync_at IS NULL OR last_sync_at < ?", olderThan).
		Find(&states).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get stale sync states: %w", err)
	}

	return states, nil
}
