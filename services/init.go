package services

import (
	"github.com/lumiohq/syncstack/config"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/repository"
	"github.com/lumiohq/syncstack/services/events"
	"github.com/lumiohq/syncstack/services/ratelimit"
	syncservice "github.com/lumiohq/syncstack/services/sync"
	"github.com/lumiohq/syncstack/services/webhook"
)

type Services struct {
	EventsService   *events.EventsService
	LimiterService  *ratelimit.LimiterService
	SyncCoordinator *syncservice.Coordinator
	SyncRunner      *syncservice.Runner
	WebhookVerifier *webhook.VerifierService
}

func InitServices(cfg *config.Config, store interfaces.KVStore, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var eventsService *events.EventsService
	var publisher interfaces.EventPublisher

	// the bus is optional; without it completion events are only logged
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		var err error
		eventsService, err = events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		publisher = eventsService.Publisher
	}

	coordinator := syncservice.NewCoordinator(store, repos.SyncStateRepository, publisher, log)

	services := Services{
		EventsService:   eventsService,
		LimiterService:  ratelimit.NewLimiterService(store, log),
		SyncCoordinator: coordinator,
		SyncRunner:      syncservice.NewRunner(coordinator, log),
		WebhookVerifier: webhook.NewVerifierService(*cfg.WebhookConfig, log),
	}

	return &services, nil
}
