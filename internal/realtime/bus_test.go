package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversLocallyPerConversation(t *testing.T) {
	b := NewBus(nil, "", nil, zerolog.Nop())

	changes, cancel := b.Subscribe("groups/G1")
	defer cancel()
	other, cancelOther := b.Subscribe("chats/G1_I2")
	defer cancelOther()

	require.NoError(t, b.Publish(context.Background(), Change{Conversation: "groups/G1", Kind: KindMessageCreated, MessageID: "m1"}))

	select {
	case change := <-changes:
		require.Equal(t, "m1", change.MessageID)
		require.False(t, change.At.IsZero())
		require.True(t, change.AffectsFeed())
	case <-time.After(time.Second):
		t.Fatal("expected change")
	}

	select {
	case change := <-other:
		t.Fatalf("unexpected change for other conversation: %+v", change)
	default:
	}
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus(nil, "", nil, zerolog.Nop())
	changes, cancel := b.Subscribe("groups/G1")
	cancel()
	cancel()

	_, open := <-changes
	require.False(t, open)

	require.NoError(t, b.Publish(context.Background(), Change{Conversation: "groups/G1", Kind: KindTyping}))
}

func TestBusIgnoresOwnAndDuplicateEvents(t *testing.T) {
	b := NewBus(nil, "", nil, zerolog.Nop()).(*bus)
	changes, cancel := b.Subscribe("groups/G1")
	defer cancel()

	own, err := json.Marshal(envelope{ID: "e0", Source: b.nodeID, Change: Change{Conversation: "groups/G1", Kind: KindTyping}})
	require.NoError(t, err)
	b.handleEvent(own)

	remote, err := json.Marshal(envelope{ID: "e1", Source: "other-node", Change: Change{Conversation: "groups/G1", Kind: KindTyping}})
	require.NoError(t, err)
	b.handleEvent(remote)
	b.handleEvent(remote)

	require.Len(t, changes, 1)
}

func TestBusFansOutAcrossNodesThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewBus(clientA, "test", nil, zerolog.Nop())
	nodeB := NewBus(clientB, "test", nil, zerolog.Nop())
	nodeB.Start(ctx)

	changes, unsubscribe := nodeB.Subscribe("groups/G1")
	defer unsubscribe()

	deadline := time.After(2 * time.Second)
	for {
		require.NoError(t, nodeA.Publish(ctx, Change{Conversation: "groups/G1", Kind: KindMessageDeleted, MessageID: "m9"}))
		select {
		case change := <-changes:
			require.Equal(t, KindMessageDeleted, change.Kind)
			require.Equal(t, "m9", change.MessageID)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("change was not fanned out to the second node")
		}
	}
}

func TestBusResubscribesAfterRedisRestart(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewBus(clientA, "test", nil, zerolog.Nop())
	nodeB := NewBus(clientB, "test", nil, zerolog.Nop())
	nodeB.(*bus).retryInitial = 10 * time.Millisecond
	nodeB.(*bus).retryMax = 50 * time.Millisecond
	nodeB.Start(ctx)

	changes, unsubscribe := nodeB.Subscribe("groups/G1")
	defer unsubscribe()

	relayed := func(messageID string) bool {
		deadline := time.After(3 * time.Second)
		for {
			_ = nodeA.Publish(ctx, Change{Conversation: "groups/G1", Kind: KindMessageCreated, MessageID: messageID})
			select {
			case change := <-changes:
				if change.MessageID == messageID {
					return true
				}
			case <-time.After(50 * time.Millisecond):
			case <-deadline:
				return false
			}
		}
	}

	require.True(t, relayed("before"), "change was not fanned out before the restart")

	server.Close()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, server.Restart())

	require.True(t, relayed("after"), "subscription did not recover after the restart")
}
