// Package realtime fans conversation change notifications out to local
// subscribers and, through Redis pub/sub and NATS, to the other API nodes.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	subscriberBufferSize = 32
	seenLimit            = 4096

	redisRetryInitial = 250 * time.Millisecond
	redisRetryMax     = 30 * time.Second
)

// Change kinds.
const (
	KindMessageCreated      = "message.created"
	KindMessageUpdated      = "message.updated"
	KindMessageDeleted      = "message.deleted"
	KindConversationUpdated = "conversation.updated"
	KindTyping              = "typing"
	KindUploadProgress      = "upload.progress"
)

// Change describes something that happened in a conversation. Conversation is
// the conversation's metadata path.
type Change struct {
	Conversation string          `json:"conversation"`
	Kind         string          `json:"kind"`
	MessageID    string          `json:"message_id,omitempty"`
	ActorID      string          `json:"actor_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	At           time.Time       `json:"at"`
}

// AffectsFeed reports whether the change alters the visible message set.
func (c Change) AffectsFeed() bool {
	switch c.Kind {
	case KindMessageCreated, KindMessageUpdated, KindMessageDeleted, KindConversationUpdated:
		return true
	default:
		return false
	}
}

type envelope struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Change Change    `json:"change"`
	SentAt time.Time `json:"sent_at"`
}

// Bus delivers changes to subscribers of a conversation.
type Bus interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(conversation string) (<-chan Change, func())
	Start(ctx context.Context)
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Change]struct{}

	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	nodeID      string
	logger      zerolog.Logger

	retryInitial time.Duration
	retryMax     time.Duration

	seenMu sync.Mutex
	seen   map[string]struct{}
	order  []string
}

// NewBus creates a change bus. Redis and NATS are optional; without them the
// bus only delivers to subscribers on this node.
func NewBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) Bus {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":changes"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".changes"
	}

	return &bus{
		subscribers: make(map[string]map[chan Change]struct{}),
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "realtime_bus").Logger(),
		seen:        make(map[string]struct{}),

		retryInitial: redisRetryInitial,
		retryMax:     redisRetryMax,
	}
}

func (b *bus) Start(ctx context.Context) {
	if b.redis != nil && b.redisStream != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

func (b *bus) Publish(ctx context.Context, change Change) error {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	b.deliver(change)

	payload, err := json.Marshal(envelope{ID: uuid.NewString(), Source: b.nodeID, Change: change, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil && b.redisStream != "" {
		if err := b.redis.Publish(ctx, b.redisStream, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a listener for the conversation. The returned function
// unsubscribes; calling it more than once is safe.
func (b *bus) Subscribe(conversation string) (<-chan Change, func()) {
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversation]; !ok {
		b.subscribers[conversation] = make(map[chan Change]struct{})
	}
	b.subscribers[conversation][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[conversation]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subscribers, conversation)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

func (b *bus) deliver(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[change.Conversation] {
		select {
		case ch <- change:
		default:
			b.logger.Warn().Str("conversation", change.Conversation).Str("kind", change.Kind).Msg("dropping change for slow subscriber")
		}
	}
}

// consumeRedis keeps a Redis subscription alive until ctx ends, resubscribing
// with exponential backoff whenever the connection drops.
func (b *bus) consumeRedis(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryInitial
	policy.MaxInterval = b.retryMax
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(policy, ctx)

	for {
		err := b.receiveRedis(ctx, retry.Reset)
		if ctx.Err() != nil {
			return
		}
		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		b.logger.Warn().Err(err).Dur("retry_in", wait).Msg("realtime redis subscription lost")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// receiveRedis relays messages from a fresh subscription until it fails.
// received is called once the subscription is confirmed.
func (b *bus) receiveRedis(ctx context.Context, received func()) error {
	pubsub := b.redis.Subscribe(ctx, b.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	received()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		b.handleEvent([]byte(msg.Payload))
	}
}

func (b *bus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleEvent(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats change subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain change subscription")
		}
	}()
}

func (b *bus) handleEvent(data []byte) {
	var event envelope
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid change event")
		return
	}
	if event.Source == b.nodeID {
		return
	}
	// Redis and NATS may both carry the same event.
	if !b.markSeen(event.ID) {
		return
	}
	b.deliver(event.Change)
}

func (b *bus) markSeen(id string) bool {
	if id == "" {
		return true
	}
	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > seenLimit {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.seen, oldest)
	}
	return true
}
