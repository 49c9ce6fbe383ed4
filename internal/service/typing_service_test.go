package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/realtime"
)

func TestTypingOthersExcludesViewer(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	fx.join(t, group, "bob")
	loc := conversation.MustResolve(group.ID, "")

	now := time.Now().UnixMilli()
	require.NoError(t, fx.typing.SetTyping(ctx, loc, "alice", dto.TypingRequest{Typing: true, At: now}))
	require.NoError(t, fx.typing.SetTyping(ctx, loc, "bob", dto.TypingRequest{Typing: true, At: now}))

	resp, err := fx.typing.Others(ctx, loc, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, resp.Users)

	require.NoError(t, fx.typing.SetTyping(ctx, loc, "bob", dto.TypingRequest{Typing: false, At: now + 1}))
	resp, err = fx.typing.Others(ctx, loc, "alice")
	require.NoError(t, err)
	require.Empty(t, resp.Users)
}

func TestTypingStaleWriteLoses(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	loc := conversation.MustResolve(group.ID, "")

	now := time.Now().UnixMilli()
	require.NoError(t, fx.typing.SetTyping(ctx, loc, "alice", dto.TypingRequest{Typing: false, At: now}))
	// A delayed "true" from before the idle transition must not resurrect the flag.
	require.NoError(t, fx.typing.SetTyping(ctx, loc, "alice", dto.TypingRequest{Typing: true, At: now - 2000}))

	users, err := fx.typing.OthersTyping(ctx, loc, "owner")
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestTypingPublishesChangeAndChecksAccess(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	loc := conversation.MustResolve(group.ID, "")

	changes, unsubscribe := fx.bus.Subscribe(loc.MetadataPath)
	defer unsubscribe()

	require.NoError(t, fx.typing.SetTyping(ctx, loc, "owner", dto.TypingRequest{Typing: true}))
	select {
	case change := <-changes:
		require.Equal(t, realtime.KindTyping, change.Kind)
		require.Equal(t, "owner", change.ActorID)
		require.False(t, change.AffectsFeed())
	case <-time.After(time.Second):
		t.Fatal("no typing change published")
	}

	require.ErrorIs(t, fx.typing.SetTyping(ctx, loc, "stranger", dto.TypingRequest{Typing: true}), ErrNotGroupMember)
}
