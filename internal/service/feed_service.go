package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/realtime"
)

// SnapshotLoader reloads the visible state of a conversation.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, loc conversation.Location, viewerID string) (dto.FeedSnapshot, error)
}

// FeedSubscription delivers full snapshots of a conversation. Snapshots holds
// at most one pending snapshot: a slow reader always sees the newest state.
// The channel is closed once the subscription ends.
type FeedSubscription struct {
	Snapshots <-chan dto.FeedSnapshot

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close ends the subscription. It is safe to call more than once.
func (f *FeedSubscription) Close() {
	f.once.Do(func() {
		f.cancel()
	})
	<-f.done
}

// FeedService synchronises live message feeds.
type FeedService interface {
	Subscribe(ctx context.Context, loc conversation.Location, viewerID string) (*FeedSubscription, error)
}

type feedService struct {
	loader SnapshotLoader
	access AccessChecker
	bus    realtime.Bus
	logger zerolog.Logger
}

// NewFeedService constructs a feed synchroniser.
func NewFeedService(loader SnapshotLoader, access AccessChecker, bus realtime.Bus, logger zerolog.Logger) FeedService {
	return &feedService{
		loader: loader,
		access: access,
		bus:    bus,
		logger: logger.With().Str("component", "feed_service").Logger(),
	}
}

// Subscribe checks access, emits the current snapshot and then a fresh full
// snapshot after every change that alters the conversation's messages. The
// subscription ends when ctx is cancelled or Close is called.
func (s *feedService) Subscribe(ctx context.Context, loc conversation.Location, viewerID string) (*FeedSubscription, error) {
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return nil, err
	}

	changes, unsubscribe := s.bus.Subscribe(loc.MetadataPath)

	initial, err := s.loader.Snapshot(ctx, loc, viewerID)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan dto.FeedSnapshot, 1)
	sub := &FeedSubscription{Snapshots: out, cancel: cancel, done: make(chan struct{})}

	out <- initial
	observability.FeedSnapshots().Inc()

	go func() {
		defer close(sub.done)
		defer close(out)
		defer unsubscribe()

		for {
			select {
			case <-subCtx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				affected := drainFeedChanges(changes) || change.AffectsFeed()
				if !affected {
					continue
				}

				snapshot, err := s.loader.Snapshot(subCtx, loc, viewerID)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					observability.FeedReloadErrors().Inc()
					s.logger.Warn().Err(err).Str("conversation", loc.MetadataPath).Msg("feed reload failed; waiting for next change")
					continue
				}
				replaceLatest(out, snapshot)
				observability.FeedSnapshots().Inc()
			}
		}
	}()

	return sub, nil
}

// drainFeedChanges consumes queued changes so a burst triggers one reload. It
// reports whether any of them altered the feed.
func drainFeedChanges(changes <-chan realtime.Change) bool {
	affected := false
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return affected
			}
			if change.AffectsFeed() {
				affected = true
			}
		default:
			return affected
		}
	}
}

// replaceLatest stores snapshot in the single-slot channel, discarding an
// unread older snapshot.
func replaceLatest(out chan dto.FeedSnapshot, snapshot dto.FeedSnapshot) {
	for {
		select {
		case out <- snapshot:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
