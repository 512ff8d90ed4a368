// Package gateway adapts the shared event bus into per-user live feeds.
// Filtering happens per connection rather than per-user topics, which is
// O(connections x events); fine at backoffice connection counts.
package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/bus"
	"github.com/eventis/backstage-api/internal/models"
)

// Gateway bridges the bus topics to long-lived client connections. Each
// subscription is a dedicated filter loop that ends, and unsubscribes
// from the bus, as soon as the caller's context is cancelled or the bus
// shuts down. There is no replay: a reconnecting client re-queries the
// store for anything missed.
type Gateway struct {
	bus    *bus.Bus
	logger zerolog.Logger
}

func New(eventBus *bus.Bus, logger zerolog.Logger) *Gateway {
	return &Gateway{
		bus:    eventBus,
		logger: logger.With().Str("component", "subscription_gateway").Logger(),
	}
}

// Subscribe delivers the notifications addressed to userID, plus global
// broadcasts, from the moment of subscription onward. The returned
// channel closes when ctx is cancelled or the bus closes.
func (g *Gateway) Subscribe(ctx context.Context, userID string) <-chan models.NotificationView {
	events, cancel := g.bus.Subscribe(bus.TopicNotifications)
	out := make(chan models.NotificationView, 16)

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-events:
				if !ok {
					return
				}
				event, ok := payload.(models.LiveEvent)
				if !ok {
					g.logger.Warn().Str("topic", bus.TopicNotifications).Msg("unexpected payload type on topic")
					continue
				}
				if event.Target != userID && event.Target != models.TargetGlobal {
					continue
				}
				select {
				case out <- event.Notification:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// SubscribeTasks delivers task create/update events for tasks assigned to
// userID. Same mechanism, same guarantees as Subscribe.
func (g *Gateway) SubscribeTasks(ctx context.Context, userID string) <-chan models.TaskEvent {
	events, cancel := g.bus.Subscribe(bus.TopicTasks)
	out := make(chan models.TaskEvent, 16)

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-events:
				if !ok {
					return
				}
				event, ok := payload.(models.TaskEvent)
				if !ok {
					g.logger.Warn().Str("topic", bus.TopicTasks).Msg("unexpected payload type on topic")
					continue
				}
				if event.Task.AssignedTo != userID {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
