package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/events"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/repository"
)

func TestGroupCreateJoinAndDuplicateJoin(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()

	group := fx.createGroup(t, "owner", true)
	require.Len(t, group.InviteCode, 6)
	require.Regexp(t, `^[0-9A-Z]{6}$`, group.InviteCode)
	require.True(t, group.IsAdmin)
	require.Equal(t, 1, group.MemberCount)

	joined, err := fx.groups.JoinByInviteCode(ctx, group.InviteCode, "alice")
	require.NoError(t, err)
	require.True(t, joined.IsMember)
	require.Equal(t, 2, joined.MemberCount)

	_, err = fx.groups.JoinByInviteCode(ctx, group.InviteCode, "alice")
	require.ErrorIs(t, err, ErrAlreadyMember)
	require.Equal(t, "already a member", err.Error())

	after, err := fx.groups.Get(ctx, group.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, after.MemberCount)

	require.Equal(t, []string{events.TypeGroupCreated, events.TypeGroupJoined}, fx.publisher.types())
}

func TestGroupJoinByInviteCodeNormalisesInput(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)

	joined, err := fx.groups.JoinByInviteCode(context.Background(), "  "+strings.ToLower(group.InviteCode)+" ", "bob")
	require.NoError(t, err)
	require.Equal(t, group.ID, joined.ID)

	_, err = fx.groups.JoinByInviteCode(context.Background(), "nope", "bob")
	require.ErrorIs(t, err, ErrInviteCodeInvalid)
}

func TestGroupPrivateGroupsAreHiddenFromNonMembers(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	private := fx.createGroup(t, "owner", true)
	public := fx.createGroup(t, "owner", false)

	_, err := fx.groups.Get(ctx, private.ID, "stranger")
	require.ErrorIs(t, err, repository.ErrGroupNotFound)

	_, err = fx.groups.JoinPublic(ctx, private.ID, "stranger")
	require.ErrorIs(t, err, ErrGroupPrivate)

	view, err := fx.groups.Get(ctx, public.ID, "stranger")
	require.NoError(t, err)
	require.False(t, view.IsMember)
	require.Empty(t, view.InviteCode)
	require.Empty(t, view.Members)

	list, err := fx.groups.Discover(ctx, "stranger", dto.GroupDiscoverQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, public.ID, list.Items[0].ID)
	require.Equal(t, int64(1), list.Pagination.TotalItems)
}

func TestGroupJoinPublic(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)

	joined, err := fx.groups.JoinPublic(ctx, group.ID, "alice")
	require.NoError(t, err)
	require.True(t, joined.IsMember)

	_, err = fx.groups.JoinPublic(ctx, group.ID, "alice")
	require.ErrorIs(t, err, ErrAlreadyMember)

	mine, err := fx.groups.ListMine(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestGroupLeaveKeepsAnAdmin(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")

	require.ErrorIs(t, fx.groups.Leave(ctx, group.ID, "owner"), ErrLastAdmin)
	require.ErrorIs(t, fx.groups.DemoteAdmin(ctx, group.ID, "owner", "owner"), ErrLastAdmin)

	require.NoError(t, fx.groups.PromoteAdmin(ctx, group.ID, "owner", "alice"))
	require.NoError(t, fx.groups.Leave(ctx, group.ID, "owner"))

	view, err := fx.groups.Get(ctx, group.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, view.MemberCount)
	require.Equal(t, []string{"alice"}, view.Admins)

	require.ErrorIs(t, fx.groups.Leave(ctx, group.ID, "owner"), ErrNotGroupMember)
}

func TestGroupAdminOnlyOperations(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")

	name := "Renamed"
	_, err := fx.groups.Update(ctx, group.ID, "alice", dto.GroupUpdateRequest{Name: &name})
	require.ErrorIs(t, err, ErrNotGroupAdmin)

	updated, err := fx.groups.Update(ctx, group.ID, "owner", dto.GroupUpdateRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)

	_, err = fx.groups.RegenerateInviteCode(ctx, group.ID, "alice")
	require.ErrorIs(t, err, ErrNotGroupAdmin)

	_, err = fx.groups.CreateInnerGroup(ctx, group.ID, "alice", dto.InnerGroupCreateRequest{Name: "x"})
	require.ErrorIs(t, err, ErrNotGroupAdmin)
}

func TestGroupRegenerateInviteCodeRetriesCollisions(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)

	codes := []string{group.InviteCode, "NEW123"}
	fx.groups.(*groupService).codeSource = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	updated, err := fx.groups.RegenerateInviteCode(ctx, group.ID, "owner")
	require.NoError(t, err)
	require.Equal(t, "NEW123", updated.InviteCode)

	_, err = fx.groups.JoinByInviteCode(ctx, group.InviteCode, "alice")
	require.ErrorIs(t, err, ErrInviteCodeInvalid)
}

func TestGroupInviteCodeAllocationGivesUp(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	fx.groups.(*groupService).codeSource = func() (string, error) { return group.InviteCode, nil }

	_, err := fx.groups.Create(context.Background(), "owner", dto.GroupCreateRequest{Name: "Another"})
	require.ErrorIs(t, err, ErrInviteCodeExhausted)
}

func TestInnerGroupVisibilityAndAccess(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	fx.join(t, group, "bob")

	loc := fx.createInner(t, group, "owner", "09:00", "17:00", "alice")
	require.Equal(t, conversation.ScopeChat, loc.Scope)

	ownerView, err := fx.groups.Get(ctx, group.ID, "owner")
	require.NoError(t, err)
	require.Len(t, ownerView.InnerGroups, 1)
	require.Equal(t, []string{"alice", "owner"}, ownerView.InnerGroups[0].Members)

	bobView, err := fx.groups.Get(ctx, group.ID, "bob")
	require.NoError(t, err)
	require.Empty(t, bobView.InnerGroups)

	_, err = fx.groups.CanAccess(ctx, loc, "bob")
	require.ErrorIs(t, err, ErrConversationForbidden)

	access, err := fx.groups.CanAccess(ctx, loc, "alice")
	require.NoError(t, err)
	start, end := access.Window()
	require.Equal(t, "09:00", start)
	require.Equal(t, "17:00", end)

	_, err = fx.groups.CanAccess(ctx, conversation.MustResolve("missing", ""), "alice")
	require.ErrorIs(t, err, repository.ErrGroupNotFound)

	_, err = fx.groups.CanAccess(ctx, conversation.MustResolve(group.ID, ""), "stranger")
	require.ErrorIs(t, err, ErrNotGroupMember)
}

func TestInnerGroupMembershipManagement(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")

	_, err := fx.groups.CreateInnerGroup(ctx, group.ID, "owner", dto.InnerGroupCreateRequest{Name: "x", Members: []string{"stranger"}})
	require.ErrorIs(t, err, ErrNotGroupMember)

	loc := fx.createInner(t, group, "owner", "", "")

	inner, err := fx.groups.AddInnerMember(ctx, group.ID, loc.InnerGroupID, "owner", "alice")
	require.NoError(t, err)
	require.Contains(t, inner.Members, "alice")

	_, err = fx.groups.AddInnerMember(ctx, group.ID, loc.InnerGroupID, "owner", "stranger")
	require.ErrorIs(t, err, ErrNotGroupMember)

	inner, err = fx.groups.RemoveInnerMember(ctx, group.ID, loc.InnerGroupID, "owner", "alice")
	require.NoError(t, err)
	require.NotContains(t, inner.Members, "alice")

	inactive := false
	inner, err = fx.groups.UpdateInnerGroup(ctx, group.ID, loc.InnerGroupID, "owner", dto.InnerGroupUpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, inner.IsActive)

	_, err = fx.groups.UpdateInnerGroup(ctx, group.ID, "missing", "owner", dto.InnerGroupUpdateRequest{IsActive: &inactive})
	require.ErrorIs(t, err, repository.ErrInnerGroupNotFound)
}

func TestInnerGroupEditsAnnounceConversationUpdates(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	loc := fx.createInner(t, group, "owner", "09:00", "17:00", "alice")

	changes, unsubscribe := fx.bus.Subscribe(loc.MetadataPath)
	defer unsubscribe()

	start := "08:00"
	inner, err := fx.groups.UpdateInnerGroup(ctx, group.ID, loc.InnerGroupID, "owner", dto.InnerGroupUpdateRequest{StartTime: &start})
	require.NoError(t, err)
	require.Equal(t, "08:00", inner.StartTime)
	require.Equal(t, "17:00", inner.EndTime)
	require.Contains(t, inner.Members, "alice")

	change := <-changes
	require.Equal(t, realtime.KindConversationUpdated, change.Kind)
	require.Equal(t, "owner", change.ActorID)

	_, err = fx.groups.RemoveInnerMember(ctx, group.ID, loc.InnerGroupID, "owner", "alice")
	require.NoError(t, err)
	change = <-changes
	require.Equal(t, realtime.KindConversationUpdated, change.Kind)

	_, err = fx.groups.UpdateInnerGroup(ctx, group.ID, loc.InnerGroupID, "owner", dto.InnerGroupUpdateRequest{})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestGroupCreateEnsuresConversationMetadata(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)

	var meta models.ConversationMeta
	require.NoError(t, fx.db.First(&meta, "path = ?", "groups/"+group.ID).Error)
	require.Equal(t, string(conversation.ScopeGroup), meta.Scope)
}
