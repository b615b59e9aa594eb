package ports

import "skubridge-integration-layer/internal/domain"

// EventPublisher fans applied canonical events out to in-process
// subscribers (live views, debugging). Publishing never blocks the
// pipeline.
type EventPublisher interface {
	Publish(event *domain.CanonicalEvent)
}
