// Package events publishes message and group lifecycle events to an external
// broker for downstream consumers (notifications, search, analytics).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/observability"
)

// Event types.
const (
	TypeMessageSent       = "message.sent"
	TypeMessageStarred    = "message.starred"
	TypeMessageUnstarred  = "message.unstarred"
	TypeMessagePinned     = "message.pinned"
	TypeMessageUnpinned   = "message.unpinned"
	TypeMessageDeleted    = "message.deleted"
	TypeMessageRead       = "message.read"
	TypePinCleared        = "conversation.pin_cleared"
	TypeGroupCreated      = "group.created"
	TypeGroupJoined       = "group.joined"
	TypeGroupLeft         = "group.left"
	TypeInnerGroupCreated = "inner_group.created"
)

// Event is the wire representation handed to every driver.
type Event struct {
	Type         string          `json:"type"`
	Conversation string          `json:"conversation,omitempty"`
	GroupID      string          `json:"group_id"`
	InnerGroupID string          `json:"inner_group_id,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	ActorID      string          `json:"actor_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Key is the partitioning key: events for one conversation stay ordered.
func (e Event) Key() string {
	if e.Conversation != "" {
		return e.Conversation
	}
	return e.GroupID
}

// Publisher hands events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Emitter publishes events on behalf of the services. Broker failures are
// logged and counted, never returned: the user action already succeeded.
type Emitter struct {
	publisher Publisher
	driver    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEmitter wraps publisher. A nil publisher behaves like Noop.
func NewEmitter(publisher Publisher, driver string, logger zerolog.Logger) *Emitter {
	if publisher == nil {
		publisher = Noop{}
	}
	if driver == "" {
		driver = "none"
	}
	return &Emitter{
		publisher: publisher,
		driver:    driver,
		logger:    logger.With().Str("component", "events").Str("driver", driver).Logger(),
		now:       time.Now,
	}
}

// Emit publishes event, stamping OccurredAt when unset. data, when non-nil, is
// marshalled into Event.Data.
func (e *Emitter) Emit(ctx context.Context, event Event, data any) {
	if e == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			e.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to encode event data")
		} else {
			event.Data = raw
		}
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		observability.EventsPublished().WithLabelValues(e.driver, event.Type, "error").Inc()
		e.logger.Warn().Err(err).Str("type", event.Type).Str("key", event.Key()).Msg("failed to publish lifecycle event")
		return
	}
	observability.EventsPublished().WithLabelValues(e.driver, event.Type, "ok").Inc()
}

// Close releases the underlying publisher.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.publisher.Close()
}
