// Package pubsub fans canonical events out to in-process subscribers.
// Delivery is best effort: a slow subscriber drops events rather than
// blocking the webhook pipeline.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/ports"

	"github.com/rs/zerolog"
)

// EventChannel represents a subscription channel.
type EventChannel struct {
	ID     string
	Filter *EventFilter
	Events chan *domain.CanonicalEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// EventFilter narrows a subscription to certain kinds or suppliers.
type EventFilter struct {
	Kinds     []domain.EventKind
	Suppliers []domain.Provider
}

// EventPubSub manages canonical event subscriptions.
type EventPubSub struct {
	mu       sync.RWMutex
	channels map[string]*EventChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewEventPubSub creates a new in-process event pub/sub.
func NewEventPubSub(logger zerolog.Logger) *EventPubSub {
	return &EventPubSub{
		channels: make(map[string]*EventChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel. The channel is removed
// when ctx is cancelled.
func (ps *EventPubSub) Subscribe(ctx context.Context, filter *EventFilter) *EventChannel {
	ps.idMu.Lock()
	ps.nextID++
	id := fmt.Sprintf("channel-%d", ps.nextID)
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	channel := &EventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *domain.CanonicalEvent, 10),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Info().
		Str("channelId", id).
		Msg("Event subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel.
func (ps *EventPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Info().
		Str("channelId", channelID).
		Msg("Event subscription removed")
}

// Publish broadcasts an event to all matching subscribers without
// blocking.
func (ps *EventPubSub) Publish(event *domain.CanonicalEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	publishedCount := 0
	for _, channel := range ps.channels {
		if !matchesFilter(event, channel.Filter) {
			continue
		}
		select {
		case channel.Events <- event:
			publishedCount++
		case <-channel.ctx.Done():
		default:
			ps.logger.Warn().
				Str("channelId", channel.ID).
				Msg("Channel buffer full, dropping event")
		}
	}

	if publishedCount > 0 {
		ps.logger.Debug().
			Str("kind", string(event.Kind)).
			Str("supplier", event.Supplier.String()).
			Int("subscribers", publishedCount).
			Msg("Published event to subscribers")
	}
}

func matchesFilter(event *domain.CanonicalEvent, filter *EventFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Kinds) > 0 {
		match := false
		for _, kind := range filter.Kinds {
			if event.Kind == kind {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(filter.Suppliers) > 0 {
		match := false
		for _, supplier := range filter.Suppliers {
			if event.Supplier == supplier {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// Stats returns pub/sub statistics for the health endpoint.
func (ps *EventPubSub) Stats() map[string]interface{} {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return map[string]interface{}{
		"active_subscriptions": len(ps.channels),
	}
}

var _ ports.EventPublisher = (*EventPubSub)(nil)
