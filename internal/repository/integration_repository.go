package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/tracing"
)

type integrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) interfaces.IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) GetIntegration(ctx context.Context, userID string, provider enum.Provider) (*models.Integration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "integrationRepository.GetIntegration")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)

	var integration models.Integration
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&integration)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, syncerrors.ErrIntegrationNotFound
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get integration: %w", result.Error)
	}

	return &integration, nil
}

func (r *integrationRepository) GetEnabledIntegrations(ctx context.Context) ([]models.Integration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "integrationRepository.GetEnabledIntegrations")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var integrations []models.Integration
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&integrations).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get enabled integrations: %w", err)
	}

	return integrations, nil
}

func (r *integrationRepository) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "integrationRepository.SaveIntegration")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, integration.Provider)

	// Reject malformed metadata before it reaches the database
	if _, err := integration.DecodeMetadata(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.Integration{}).
		Where("user_id = ? AND provider = ?", integration.UserID, integration.Provider).
		Updates(map[string]interface{}{
			"enabled":    integration.Enabled,
			"metadata":   integration.RawMetadata,
			"updated_at": time.Now(),
		})

	if result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(integration)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save integration: %w", result.Error)
	}

	return nil
}

func (r *integrationRepository) DeleteIntegration(ctx context.Context, userID string, provider enum.Provider) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "integrationRepository.DeleteIntegration")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagProvider(span, provider)

	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.Integration{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete integration: %w", result.Error)
	}

	return nil
}
