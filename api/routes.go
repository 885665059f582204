package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/lumiohq/syncstack/api/handlers"
	"github.com/lumiohq/syncstack/api/middleware"
	"github.com/lumiohq/syncstack/config"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/repository"
	"github.com/lumiohq/syncstack/internal/tracing"
	"github.com/lumiohq/syncstack/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, cfg *config.Config, s *services.Services, repos *repository.Repositories, log logger.Logger) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// setup handlers
	apiHandlers := handlers.InitHandlers(cfg, s, repos, log)

	r.GET("/health", handlers.HealthCheck)

	// Provider webhooks: authenticated by signature, not by API key
	webhooks := r.Group("/webhooks")
	webhooks.Use(middleware.CustomContextMiddleware("syncstack"))
	webhooks.Use(middleware.TracingMiddleware())
	{
		webhooks.POST("/slack", apiHandlers.Webhooks.Slack())
		webhooks.POST("/google", apiHandlers.Webhooks.Google())
		webhooks.POST("/telegram", apiHandlers.Webhooks.Telegram())
		webhooks.POST("/twilio", apiHandlers.Webhooks.Twilio())
	}

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-SYNCSTACK-API-KEY",
		ValidAPIKey: cfg.AppConfig.APIKey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware("syncstack"))
	api.Use(middleware.TracingMiddleware())
	{
		syncs := api.Group("/syncs")
		{
			syncs.POST("", apiHandlers.Syncs.TriggerSync())
			syncs.GET("/:provider/status", apiHandlers.Syncs.GetStatus())
			syncs.GET("/:provider/progress", apiHandlers.Syncs.GetProgress())
		}
	}
}
