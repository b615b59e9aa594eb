package pubsub

import (
	"context"
	"testing"
	"time"

	"skubridge-integration-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockEvent(supplier domain.Provider, sku string) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		Kind:     domain.EventStockUpdated,
		Supplier: supplier,
		SKU:      sku,
	}
}

func receive(t *testing.T, ch *EventChannel) *domain.CanonicalEvent {
	t.Helper()
	select {
	case evt := <-ch.Events:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	ps := NewEventPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := ps.Subscribe(ctx, nil)
	ps.Publish(stockEvent(domain.ProviderShopify, "SKU-1"))

	evt := receive(t, all)
	assert.Equal(t, "SKU-1", evt.SKU)
	assert.Equal(t, 1, ps.Stats()["active_subscriptions"])
}

func TestFilterNarrowsDelivery(t *testing.T) {
	ps := NewEventPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	erpOnly := ps.Subscribe(ctx, &EventFilter{Suppliers: []domain.Provider{domain.ProviderSupplierERP}})
	productOnly := ps.Subscribe(ctx, &EventFilter{Kinds: []domain.EventKind{domain.EventProductUpdated}})

	ps.Publish(stockEvent(domain.ProviderSupplierERP, "SUP-1"))
	ps.Publish(stockEvent(domain.ProviderShopify, "SHOP-1"))

	evt := receive(t, erpOnly)
	assert.Equal(t, "SUP-1", evt.SKU)
	select {
	case extra := <-erpOnly.Events:
		t.Fatalf("unexpected event %q on filtered channel", extra.SKU)
	default:
	}
	select {
	case extra := <-productOnly.Events:
		t.Fatalf("stock event %q leaked past kind filter", extra.SKU)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	ps := NewEventPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := ps.Subscribe(ctx, nil)

	// Overfill the channel buffer; extra events are dropped, not queued.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 25; i++ {
			ps.Publish(stockEvent(domain.ProviderShopify, "SKU"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, slow.Events, 10)
}

func TestContextCancelUnsubscribes(t *testing.T) {
	ps := NewEventPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ch := ps.Subscribe(ctx, nil)
	require.Equal(t, 1, ps.Stats()["active_subscriptions"])

	cancel()
	select {
	case <-ch.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not removed after cancel")
	}
	assert.Equal(t, 0, ps.Stats()["active_subscriptions"])
}
