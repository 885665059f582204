package handlers

import (
	"github.com/lumiohq/syncstack/config"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/repository"
	"github.com/lumiohq/syncstack/services"
)

type Handlers struct {
	Webhooks *WebhookHandler
	Syncs    *SyncHandler
}

func InitHandlers(cfg *config.Config, s *services.Services, repos *repository.Repositories, log logger.Logger) *Handlers {
	var publisher interfaces.EventPublisher
	if s.EventsService != nil {
		publisher = s.EventsService.Publisher
	}

	return &Handlers{
		Webhooks: NewWebhookHandler(s.WebhookVerifier, *cfg.WebhookConfig, publisher, repos.IntegrationRepository, log),
		Syncs:    NewSyncHandler(s.SyncCoordinator, repos.SyncStateRepository, publisher, log),
	}
}
