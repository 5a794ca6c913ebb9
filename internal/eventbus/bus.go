// Package eventbus is the in-process publish/subscribe channel carrying
// domain notifications. Delivery is push-based with no durability: an event
// published while nobody subscribes to its team is dropped, never replayed.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"taskgate/internal/platform/metrics"
)

// subscriptionBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than stalling the
// publish path for everyone else.
const subscriptionBuffer = 16

// TaskRef is the task detail attached to a notification, if any.
type TaskRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Notification is a transient domain event scoped to one team. It exists
// only for the duration of fan-out.
type Notification struct {
	ID      string   `json:"id"`
	Message string   `json:"message"`
	TeamID  string   `json:"teamId"`
	Task    *TaskRef `json:"task"`
}

// Bus fans notifications out to every matching subscription. All methods
// are safe for concurrent use; publishes are serialized so subscribers with
// the same team observe events in publish order.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Subscription is one registered delivery channel, filtered to a team.
type Subscription struct {
	id     string
	teamID string
	ch     chan Notification
	bus    *Bus
	once   sync.Once
}

// New creates an empty bus.
func New(logger *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		subs:    make(map[string]*Subscription),
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers a new delivery channel for teamID. Every call yields
// an independent subscription with its own lifecycle; events published
// strictly after Subscribe returns are guaranteed to be evaluated against it.
func (b *Bus) Subscribe(teamID string) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		teamID: teamID,
		ch:     make(chan Notification, subscriptionBuffer),
		bus:    b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ActiveSubscriptions.Inc()
	}
	return sub
}

// Publish delivers n to every subscription whose team matches. A full
// subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.NotificationsPublished.Inc()
	}

	for _, sub := range b.subs {
		if sub.teamID != n.TeamID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			if b.metrics != nil {
				b.metrics.NotificationsDropped.Inc()
			}
			b.logger.Warn("subscriber too slow, notification dropped",
				"subscription_id", sub.id,
				"team_id", n.TeamID,
				"notification_id", n.ID,
			)
		}
	}
}

// Len reports the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C is the delivery channel. It is closed when the subscription is closed.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// TeamID returns the partition key this subscription is filtered to.
func (s *Subscription) TeamID() string {
	return s.teamID
}

// Close removes the subscription from the bus and closes the delivery
// channel. Safe to call more than once. The channel close happens under the
// bus lock, so a concurrent Publish can never send on a closed channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()

		if s.bus.metrics != nil {
			s.bus.metrics.ActiveSubscriptions.Dec()
		}
	})
}
