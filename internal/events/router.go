// ABOUTME: Pattern-based publish/subscribe fan-out across channels
// ABOUTME: Tenant-scoped matching, per-subscriber FIFO and partial-failure isolation

package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/nexus-gateway/internal/metrics"
	"github.com/2389/nexus-gateway/internal/store"
)

// Mode selects delivery semantics for a publish call.
type Mode string

const (
	// Persisted events are written to the store before fan-out, so
	// subscribers get at-least-once delivery via replay after a miss.
	ModePersisted Mode = "persisted"
	// Ephemeral events are best-effort push notifications: no retry,
	// dropped for subscribers whose buffers are full.
	ModeEphemeral Mode = "ephemeral"
)

// Subscription is a registered subscriber. Events arrive on C in publish
// order (per-subscriber FIFO). Close the subscription via Unsubscribe.
type Subscription struct {
	ID      string
	Channel string // subscriber channel name, e.g. "httpapi"
	Pattern Pattern
	Tenant  *string // nil subscribes across tenants it is allowed to see
	C       <-chan *store.Event

	ch     chan *store.Event
	router *Router
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.router.unsubscribe(s.ID)
}

// Router fans published events out to matching subscribers. The
// subscription registry is the only contended state; events themselves
// are immutable and shared-read by all matched subscribers.
type Router struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	store   store.Store
	buffer  int
	metrics metrics.Metrics
	logger  *slog.Logger
}

// NewRouter creates a router. The store backs persisted-mode publishes;
// buffer sizes each subscriber's channel. Pass nil logger for default.
func NewRouter(s store.Store, buffer int, m metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Router{
		subs:    make(map[string]*Subscription),
		store:   s,
		buffer:  buffer,
		metrics: m,
		logger:  logger.With("component", "events"),
	}
}

// Subscribe compiles the pattern once and registers a subscriber for the
// given channel. A non-nil tenant filter restricts delivery to that
// tenant's events (plus tenant-less events).
func (r *Router) Subscribe(channel, pattern string, tenant *string) (*Subscription, error) {
	compiled, err := CompilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("subscribing %s: %w", channel, err)
	}

	ch := make(chan *store.Event, r.buffer)
	sub := &Subscription{
		ID:      uuid.New().String(),
		Channel: channel,
		Pattern: compiled,
		Tenant:  tenant,
		C:       ch,
		ch:      ch,
		router:  r,
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	r.logger.Debug("subscriber added",
		"channel", channel,
		"pattern", pattern,
		"sub_id", sub.ID)
	return sub, nil
}

// SubscribeContext is Subscribe with automatic cleanup when ctx ends.
func (r *Router) SubscribeContext(ctx context.Context, channel, pattern string, tenant *string) (*Subscription, error) {
	sub, err := r.Subscribe(channel, pattern, tenant)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}

// Publish delivers the event to every matching subscriber. For
// ModePersisted the event is stored first; a storage failure fails the
// publish before any fan-out. Delivery to each subscriber is attempted
// independently: a full buffer drops the event for that subscriber only
// (persisted events remain replayable from the store). Events are
// immutable after this call; subscribers must not mutate them.
func (r *Router) Publish(ctx context.Context, event *store.Event, mode Mode) error {
	if event.Type == "" {
		return fmt.Errorf("publishing event: empty type")
	}

	if mode == ModePersisted {
		if err := r.store.SaveEvent(ctx, event); err != nil {
			return fmt.Errorf("persisting event %s: %w", event.ID, err)
		}
	}

	// Deliver under the read lock: unsubscribe closes sub.ch under the
	// write lock, so a send can never race a close. Sends are
	// non-blocking, so the lock is held only momentarily.
	r.mu.RLock()
	for _, sub := range r.subs {
		if !sub.Pattern.Matches(event.Type) {
			continue
		}
		if !tenantMatches(sub.Tenant, event.TenantID) {
			continue
		}
		select {
		case sub.ch <- event:
			// Delivered; channel order gives per-subscriber FIFO
		default:
			r.metrics.IncEventsDropped(event.Type)
			r.logger.Debug("dropped event for slow subscriber",
				"sub_id", sub.ID,
				"channel", sub.Channel,
				"event_id", event.ID)
		}
	}
	r.mu.RUnlock()

	r.metrics.IncEventsPublished(event.Type, string(mode))
	return nil
}

// Replay returns persisted events after sinceID scoped to the tenant,
// in publish order. Used by subscribers resuming after a disconnect.
func (r *Router) Replay(ctx context.Context, sinceID string, tenant *string, limit int) ([]*store.Event, error) {
	return r.store.ListEventsSince(ctx, sinceID, tenant, limit)
}

func (r *Router) unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return
	}
	delete(r.subs, id)
	close(sub.ch)
}

// tenantMatches applies tenant scoping: tenant-scoped events never reach
// subscriptions filtered to a different tenant, regardless of pattern.
// Tenant-less events reach everyone; tenant-less subscriptions see all.
func tenantMatches(subTenant, eventTenant *string) bool {
	if eventTenant == nil || subTenant == nil {
		return true
	}
	return *subTenant == *eventTenant
}
