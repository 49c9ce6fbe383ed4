package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/events"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/repository"
)

const (
	inviteCodeLength   = 6
	inviteCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	inviteCodeAttempts = 8
)

var (
	// ErrAlreadyMember is returned when a user joins a group they belong to.
	ErrAlreadyMember = errors.New("already a member")
	// ErrInviteCodeInvalid is returned when no group carries the invite code.
	ErrInviteCodeInvalid = errors.New("invalid invite code")
	// ErrNotGroupMember is returned when the caller does not belong to the group.
	ErrNotGroupMember = errors.New("not a member of this group")
	// ErrNotGroupAdmin is returned when an admin-only action is attempted by a member.
	ErrNotGroupAdmin = errors.New("only group admins can perform this action")
	// ErrConversationForbidden is returned when the caller is not part of an inner group.
	ErrConversationForbidden = errors.New("not a member of this conversation")
	// ErrGroupPrivate is returned when joining a private group without its invite code.
	ErrGroupPrivate = errors.New("group is private; an invite code is required")
	// ErrLastAdmin is returned when an action would leave a group without admins.
	ErrLastAdmin = errors.New("group must keep at least one admin")
	// ErrInnerGroupInactive is returned when sending into a deactivated inner group.
	ErrInnerGroupInactive = errors.New("inner group is inactive")
	// ErrInviteCodeExhausted is returned when no unused invite code could be generated.
	ErrInviteCodeExhausted = errors.New("could not allocate a unique invite code")
)

// ConversationAccess is what a caller may do in a conversation.
type ConversationAccess struct {
	Location conversation.Location
	Member   models.GroupMember
	Inner    *models.InnerGroup
}

// IsAdmin reports whether the caller administers the owning group.
func (a ConversationAccess) IsAdmin() bool {
	return a.Member.IsAdmin()
}

// Window returns the send-window bounds that apply to the conversation.
// Group conversations have none.
func (a ConversationAccess) Window() (string, string) {
	if a.Inner == nil {
		return "", ""
	}
	return a.Inner.StartTime, a.Inner.EndTime
}

// AccessChecker resolves a caller's rights in a conversation.
type AccessChecker interface {
	CanAccess(ctx context.Context, loc conversation.Location, userID string) (ConversationAccess, error)
}

// GroupService manages groups, memberships and inner groups.
type GroupService interface {
	AccessChecker
	Create(ctx context.Context, creatorID string, req dto.GroupCreateRequest) (dto.GroupResponse, error)
	Discover(ctx context.Context, viewerID string, query dto.GroupDiscoverQuery) (dto.GroupListResponse, error)
	ListMine(ctx context.Context, viewerID string) ([]dto.GroupResponse, error)
	Get(ctx context.Context, groupID, viewerID string) (dto.GroupResponse, error)
	JoinByInviteCode(ctx context.Context, code, userID string) (dto.GroupResponse, error)
	JoinPublic(ctx context.Context, groupID, userID string) (dto.GroupResponse, error)
	Leave(ctx context.Context, groupID, userID string) error
	Update(ctx context.Context, groupID, actorID string, req dto.GroupUpdateRequest) (dto.GroupResponse, error)
	RegenerateInviteCode(ctx context.Context, groupID, actorID string) (dto.GroupResponse, error)
	PromoteAdmin(ctx context.Context, groupID, actorID, userID string) error
	DemoteAdmin(ctx context.Context, groupID, actorID, userID string) error
	CreateInnerGroup(ctx context.Context, groupID, actorID string, req dto.InnerGroupCreateRequest) (dto.InnerGroupResponse, error)
	UpdateInnerGroup(ctx context.Context, groupID, innerID, actorID string, req dto.InnerGroupUpdateRequest) (dto.InnerGroupResponse, error)
	AddInnerMember(ctx context.Context, groupID, innerID, actorID, userID string) (dto.InnerGroupResponse, error)
	RemoveInnerMember(ctx context.Context, groupID, innerID, actorID, userID string) (dto.InnerGroupResponse, error)
}

type groupService struct {
	repo          repository.GroupRepository
	conversations repository.ConversationRepository
	emitter       *events.Emitter
	bus           realtime.Bus
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	codeSource    func() (string, error)
}

// NewGroupService constructs a group service. Inner-group edits are announced
// on bus so live sessions re-read their access and send window.
func NewGroupService(repo repository.GroupRepository, conversations repository.ConversationRepository, emitter *events.Emitter, bus realtime.Bus, validate *validator.Validate, logger zerolog.Logger) GroupService {
	return &groupService{
		repo:          repo,
		conversations: conversations,
		emitter:       emitter,
		bus:           bus,
		validator:     validate,
		logger:        logger.With().Str("component", "group_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/groupchat-api/internal/service/group"),
		codeSource:    randomInviteCode,
	}
}

func (s *groupService) Create(ctx context.Context, creatorID string, req dto.GroupCreateRequest) (dto.GroupResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return dto.GroupResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "group.create")
	defer span.End()

	code, err := s.allocateInviteCode(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.GroupResponse{}, err
	}

	group := models.Group{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		CreatorID:       creatorID,
		IsPrivate:       req.IsPrivate,
		InviteCode:      &code,
		ProfileImageURL: strings.TrimSpace(req.ProfileImageURL),
	}
	creator := models.GroupMember{UserID: creatorID, Role: models.GroupRoleAdmin, JoinedAt: time.Now().UTC()}

	if err := s.repo.Create(ctx, &group, creator); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.GroupResponse{}, fmt.Errorf("create group: %w", err)
	}
	span.SetAttributes(attribute.String("group.id", group.ID))

	loc := conversation.MustResolve(group.ID, "")
	if err := s.conversations.Ensure(ctx, loc); err != nil {
		s.logger.Warn().Err(err).Str("group_id", group.ID).Msg("failed to create group conversation metadata")
	}

	s.emitter.Emit(ctx, events.Event{Type: events.TypeGroupCreated, Conversation: loc.MetadataPath, GroupID: group.ID, ActorID: creatorID}, nil)
	s.logger.Info().Str("group_id", group.ID).Str("creator_id", creatorID).Msg("group created")

	return s.Get(ctx, group.ID, creatorID)
}

func (s *groupService) Discover(ctx context.Context, viewerID string, query dto.GroupDiscoverQuery) (dto.GroupListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.GroupListResponse{}, err
	}

	filter := repository.GroupFilter{Search: strings.TrimSpace(query.Search), Page: query.Page, PageSize: query.PageSize}
	groups, total, err := s.repo.ListPublic(ctx, filter)
	if err != nil {
		return dto.GroupListResponse{}, err
	}

	page, pageSize := pageOrDefault(query.Page, query.PageSize)
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return dto.GroupListResponse{
		Items: dto.NewGroupResponseSlice(groups, viewerID),
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *groupService) ListMine(ctx context.Context, viewerID string) ([]dto.GroupResponse, error) {
	groups, err := s.repo.ListByMember(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewGroupResponseSlice(groups, viewerID)
	s.attachPreviews(ctx, resp)
	return resp, nil
}

// attachPreviews fills the last-message preview of each listed group and of the
// inner groups the viewer can see. A metadata failure leaves the list usable.
func (s *groupService) attachPreviews(ctx context.Context, groups []dto.GroupResponse) {
	if len(groups) == 0 {
		return
	}
	ids := make([]string, 0, len(groups))
	for _, group := range groups {
		ids = append(ids, group.ID)
	}
	metas, err := s.conversations.ListByGroups(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load conversation previews")
		return
	}
	byPath := make(map[string]models.ConversationMeta, len(metas))
	for _, meta := range metas {
		byPath[meta.Path] = meta
	}
	preview := func(groupID, innerID string) *dto.ConversationResponse {
		loc, err := conversation.Resolve(groupID, innerID)
		if err != nil {
			return nil
		}
		meta, ok := byPath[loc.MetadataPath]
		if !ok {
			return nil
		}
		resp := dto.NewConversationResponse(meta)
		return &resp
	}

	for i := range groups {
		groups[i].Conversation = preview(groups[i].ID, "")
		for j := range groups[i].InnerGroups {
			groups[i].InnerGroups[j].Conversation = preview(groups[i].ID, groups[i].InnerGroups[j].ID)
		}
	}
}

func (s *groupService) Get(ctx context.Context, groupID, viewerID string) (dto.GroupResponse, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	resp := dto.NewGroupResponse(group, viewerID)
	if group.IsPrivate && !resp.IsMember {
		return dto.GroupResponse{}, repository.ErrGroupNotFound
	}
	return resp, nil
}

func (s *groupService) JoinByInviteCode(ctx context.Context, code, userID string) (dto.GroupResponse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := s.validator.Struct(dto.JoinGroupRequest{InviteCode: code}); err != nil {
		s.countJoin("invite", "invalid")
		return dto.GroupResponse{}, ErrInviteCodeInvalid
	}

	group, err := s.repo.FindByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			s.countJoin("invite", "invalid")
			return dto.GroupResponse{}, ErrInviteCodeInvalid
		}
		return dto.GroupResponse{}, err
	}

	if err := s.join(ctx, group, userID, "invite"); err != nil {
		return dto.GroupResponse{}, err
	}
	return s.Get(ctx, group.ID, userID)
}

func (s *groupService) JoinPublic(ctx context.Context, groupID, userID string) (dto.GroupResponse, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	if group.IsPrivate {
		if isMember(group, userID) {
			s.countJoin("public", "duplicate")
			return dto.GroupResponse{}, ErrAlreadyMember
		}
		s.countJoin("public", "private")
		return dto.GroupResponse{}, ErrGroupPrivate
	}

	if err := s.join(ctx, group, userID, "public"); err != nil {
		return dto.GroupResponse{}, err
	}
	return s.Get(ctx, group.ID, userID)
}

// join checks membership before writing so a duplicate join never touches the
// member counter. The composite key still rejects a racing duplicate.
func (s *groupService) join(ctx context.Context, group models.Group, userID, method string) error {
	ctx, span := s.tracer.Start(ctx, "group.join", trace.WithAttributes(
		attribute.String("group.id", group.ID),
		attribute.String("group.join_method", method),
	))
	defer span.End()

	if isMember(group, userID) {
		s.countJoin(method, "duplicate")
		return ErrAlreadyMember
	}

	err := s.repo.AddMember(ctx, models.GroupMember{GroupID: group.ID, UserID: userID, Role: models.GroupRoleMember, JoinedAt: time.Now().UTC()})
	if err != nil {
		if errors.Is(err, repository.ErrMembershipExists) {
			s.countJoin(method, "duplicate")
			return ErrAlreadyMember
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("add member: %w", err)
	}

	s.countJoin(method, "joined")
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TypeGroupJoined,
		Conversation: conversation.MustResolve(group.ID, "").MetadataPath,
		GroupID:      group.ID,
		ActorID:      userID,
	}, map[string]string{"method": method})
	return nil
}

func (s *groupService) Leave(ctx context.Context, groupID, userID string) error {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return err
	}
	member, ok := findMember(group, userID)
	if !ok {
		return ErrNotGroupMember
	}
	if member.IsAdmin() && countAdmins(group) == 1 && len(group.Members) > 1 {
		return ErrLastAdmin
	}

	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrNotGroupMember
		}
		return err
	}
	for _, inner := range group.InnerGroups {
		if inner.HasMember(userID) {
			s.announce(ctx, groupID, inner.ID, userID)
		}
	}

	s.emitter.Emit(ctx, events.Event{
		Type:         events.TypeGroupLeft,
		Conversation: conversation.MustResolve(groupID, "").MetadataPath,
		GroupID:      groupID,
		ActorID:      userID,
	}, nil)
	return nil
}

func (s *groupService) Update(ctx context.Context, groupID, actorID string, req dto.GroupUpdateRequest) (dto.GroupResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GroupResponse{}, err
	}
	if _, err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return dto.GroupResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IsPrivate != nil {
		updates["is_private"] = *req.IsPrivate
	}
	if req.ProfileImageURL != nil {
		updates["profile_image_url"] = strings.TrimSpace(*req.ProfileImageURL)
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, groupID, updates); err != nil {
			return dto.GroupResponse{}, err
		}
	}
	return s.Get(ctx, groupID, actorID)
}

func (s *groupService) RegenerateInviteCode(ctx context.Context, groupID, actorID string) (dto.GroupResponse, error) {
	if _, err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return dto.GroupResponse{}, err
	}

	code, err := s.allocateInviteCode(ctx)
	if err != nil {
		return dto.GroupResponse{}, err
	}
	if err := s.repo.Update(ctx, groupID, map[string]interface{}{"invite_code": code}); err != nil {
		return dto.GroupResponse{}, err
	}
	return s.Get(ctx, groupID, actorID)
}

func (s *groupService) PromoteAdmin(ctx context.Context, groupID, actorID, userID string) error {
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if _, ok := findMember(group, userID); !ok {
		return ErrNotGroupMember
	}
	return s.repo.SetMemberRole(ctx, groupID, userID, models.GroupRoleAdmin)
}

func (s *groupService) DemoteAdmin(ctx context.Context, groupID, actorID, userID string) error {
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	member, ok := findMember(group, userID)
	if !ok {
		return ErrNotGroupMember
	}
	if !member.IsAdmin() {
		return nil
	}
	if countAdmins(group) == 1 {
		return ErrLastAdmin
	}
	return s.repo.SetMemberRole(ctx, groupID, userID, models.GroupRoleMember)
}

func (s *groupService) CreateInnerGroup(ctx context.Context, groupID, actorID string, req dto.InnerGroupCreateRequest) (dto.InnerGroupResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return dto.InnerGroupResponse{}, err
	}
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return dto.InnerGroupResponse{}, err
	}

	members := []string{actorID}
	for _, userID := range req.Members {
		userID = strings.TrimSpace(userID)
		if userID == "" || userID == actorID || contains(members, userID) {
			continue
		}
		if _, ok := findMember(group, userID); !ok {
			return dto.InnerGroupResponse{}, fmt.Errorf("%s: %w", userID, ErrNotGroupMember)
		}
		members = append(members, userID)
	}

	inner := models.InnerGroup{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Name:      req.Name,
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
		Members:   members,
		IsActive:  true,
		CreatorID: actorID,
	}
	if err := s.repo.CreateInnerGroup(ctx, &inner); err != nil {
		return dto.InnerGroupResponse{}, fmt.Errorf("create inner group: %w", err)
	}

	loc := conversation.MustResolve(groupID, inner.ID)
	if err := s.conversations.Ensure(ctx, loc); err != nil {
		s.logger.Warn().Err(err).Str("conversation", loc.MetadataPath).Msg("failed to create chat metadata")
	}
	s.emitter.Emit(ctx, events.Event{Type: events.TypeInnerGroupCreated, Conversation: loc.MetadataPath, GroupID: groupID, InnerGroupID: inner.ID, ActorID: actorID}, nil)

	return dto.NewInnerGroupResponse(inner), nil
}

func (s *groupService) UpdateInnerGroup(ctx context.Context, groupID, innerID, actorID string, req dto.InnerGroupUpdateRequest) (dto.InnerGroupResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.InnerGroupResponse{}, err
	}
	if _, err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return dto.InnerGroupResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.StartTime != nil {
		updates["start_time"] = strings.TrimSpace(*req.StartTime)
	}
	if req.EndTime != nil {
		updates["end_time"] = strings.TrimSpace(*req.EndTime)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	inner, err := s.repo.UpdateInnerGroup(ctx, groupID, innerID, updates)
	if err != nil {
		return dto.InnerGroupResponse{}, err
	}
	if len(updates) > 0 {
		s.announce(ctx, groupID, innerID, actorID)
	}
	return dto.NewInnerGroupResponse(inner), nil
}

func (s *groupService) AddInnerMember(ctx context.Context, groupID, innerID, actorID, userID string) (dto.InnerGroupResponse, error) {
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return dto.InnerGroupResponse{}, err
	}
	if _, ok := findMember(group, userID); !ok {
		return dto.InnerGroupResponse{}, ErrNotGroupMember
	}

	inner, err := s.repo.SetInnerMember(ctx, groupID, innerID, userID, true)
	if err != nil {
		return dto.InnerGroupResponse{}, err
	}
	return dto.NewInnerGroupResponse(inner), nil
}

func (s *groupService) RemoveInnerMember(ctx context.Context, groupID, innerID, actorID, userID string) (dto.InnerGroupResponse, error) {
	if _, err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return dto.InnerGroupResponse{}, err
	}

	inner, err := s.repo.SetInnerMember(ctx, groupID, innerID, userID, false)
	if err != nil {
		return dto.InnerGroupResponse{}, err
	}
	s.announce(ctx, groupID, innerID, actorID)
	return dto.NewInnerGroupResponse(inner), nil
}

// announce tells live sessions of an inner-group chat that its access rules or
// window changed.
func (s *groupService) announce(ctx context.Context, groupID, innerID, actorID string) {
	if s.bus == nil {
		return
	}
	loc, err := conversation.Resolve(groupID, innerID)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, realtime.Change{
		Conversation: loc.MetadataPath,
		Kind:         realtime.KindConversationUpdated,
		ActorID:      actorID,
	}); err != nil {
		s.logger.Warn().Err(err).Str("conversation", loc.MetadataPath).Msg("failed to announce inner group change")
	}
}

func (s *groupService) CanAccess(ctx context.Context, loc conversation.Location, userID string) (ConversationAccess, error) {
	member, err := s.repo.FindMember(ctx, loc.GroupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			if _, findErr := s.repo.FindByID(ctx, loc.GroupID); errors.Is(findErr, repository.ErrGroupNotFound) {
				return ConversationAccess{}, repository.ErrGroupNotFound
			}
			return ConversationAccess{}, ErrNotGroupMember
		}
		return ConversationAccess{}, err
	}

	access := ConversationAccess{Location: loc, Member: member}
	if !loc.IsChat() {
		return access, nil
	}

	inner, err := s.repo.FindInnerGroup(ctx, loc.GroupID, loc.InnerGroupID)
	if err != nil {
		return ConversationAccess{}, err
	}
	if !inner.HasMember(userID) {
		return ConversationAccess{}, ErrConversationForbidden
	}
	access.Inner = &inner
	return access, nil
}

func (s *groupService) requireAdmin(ctx context.Context, groupID, actorID string) (models.Group, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	member, ok := findMember(group, actorID)
	if !ok {
		return models.Group{}, ErrNotGroupMember
	}
	if !member.IsAdmin() {
		return models.Group{}, ErrNotGroupAdmin
	}
	return group, nil
}

func (s *groupService) allocateInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.codeSource()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		exists, err := s.repo.InviteCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		s.logger.Debug().Str("code", code).Msg("invite code collision, retrying")
	}
	return "", ErrInviteCodeExhausted
}

func (s *groupService) countJoin(method, result string) {
	observability.GroupJoins().WithLabelValues(method, result).Inc()
}

// randomInviteCode draws six base-36 characters, upper-cased.
func randomInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(inviteCodeLength)
	limit := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func isMember(group models.Group, userID string) bool {
	_, ok := findMember(group, userID)
	return ok
}

func findMember(group models.Group, userID string) (models.GroupMember, bool) {
	for _, member := range group.Members {
		if member.UserID == userID {
			return member, true
		}
	}
	return models.GroupMember{}, false
}

func countAdmins(group models.Group) int {
	count := 0
	for _, member := range group.Members {
		if member.IsAdmin() {
			count++
		}
	}
	return count
}

func pageOrDefault(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func contains(set []string, value string) bool {
	for _, item := range set {
		if item == value {
			return true
		}
	}
	return false
}
