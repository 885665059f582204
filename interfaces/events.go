package interfaces

import (
	"context"

	"github.com/lumiohq/syncstack/dto"
)

// EventPublisher pushes sync lifecycle events onto the message bus.
// Publishing is best-effort from the coordinator's point of view: a failed
// publish never changes the outcome of the run it reports on.
type EventPublisher interface {
	PublishSyncRequested(ctx context.Context, event dto.SyncRequested) error
	PublishSyncCompleted(ctx context.Context, event dto.SyncCompleted) error
	Close() error
}
