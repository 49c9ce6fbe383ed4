package dto

import (
	"sort"

	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

// GroupCreateRequest is the payload for creating a group.
type GroupCreateRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=120"`
	Description     string `json:"description" validate:"omitempty,max=2000"`
	IsPrivate       bool   `json:"is_private"`
	ProfileImageURL string `json:"profile_image_url" validate:"omitempty,url,max=512"`
}

// GroupUpdateRequest carries optional group changes.
type GroupUpdateRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=120"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	IsPrivate       *bool   `json:"is_private"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,max=512"`
}

// JoinGroupRequest joins a group by invite code.
type JoinGroupRequest = chatapi.JoinGroupRequest

// GroupDiscoverQuery filters public groups.
type GroupDiscoverQuery struct {
	Search   string `query:"search" validate:"omitempty,max=120"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// InnerGroupCreateRequest creates an inner group inside a group.
type InnerGroupCreateRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=120"`
	StartTime string   `json:"start_time" validate:"omitempty,clock"`
	EndTime   string   `json:"end_time" validate:"omitempty,clock"`
	Members   []string `json:"members" validate:"omitempty,dive,required,max=64"`
}

// InnerGroupUpdateRequest updates an inner group.
type InnerGroupUpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=120"`
	StartTime *string `json:"start_time" validate:"omitempty,clock"`
	EndTime   *string `json:"end_time" validate:"omitempty,clock"`
	IsActive  *bool   `json:"is_active"`
}

// InnerGroupMemberRequest adds a user to an inner group.
type InnerGroupMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// InnerGroupResponse is the viewer-facing representation of an inner group.
type InnerGroupResponse = chatapi.InnerGroupResponse

// GroupResponse is the representation of a group as seen by a viewer.
type GroupResponse = chatapi.GroupResponse

// GroupListResponse wraps a paginated list of groups.
type GroupListResponse struct {
	Items      []GroupResponse `json:"items"`
	Pagination PaginationMeta  `json:"pagination"`
}

// PaginationMeta describes pagination state for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewInnerGroupResponse converts an inner group model into its DTO.
func NewInnerGroupResponse(model models.InnerGroup) InnerGroupResponse {
	members := append([]string(nil), model.Members...)
	sort.Strings(members)
	return InnerGroupResponse{
		ID:        model.ID,
		GroupID:   model.GroupID,
		Name:      model.Name,
		StartTime: model.StartTime,
		EndTime:   model.EndTime,
		Members:   members,
		IsActive:  model.IsActive,
		CreatorID: model.CreatorID,
		CreatedAt: model.CreatedAt,
	}
}

// FilterInnerGroups keeps only the inner groups the viewer belongs to.
func FilterInnerGroups(groups []models.InnerGroup, viewerID string) []InnerGroupResponse {
	out := make([]InnerGroupResponse, 0, len(groups))
	for _, group := range groups {
		if group.HasMember(viewerID) {
			out = append(out, NewInnerGroupResponse(group))
		}
	}
	return out
}

// NewGroupResponse projects a group for viewerID. Member lists, the invite code
// and inner groups are only exposed to members.
func NewGroupResponse(model models.Group, viewerID string) GroupResponse {
	resp := GroupResponse{
		ID:              model.ID,
		Name:            model.Name,
		Description:     model.Description,
		CreatorID:       model.CreatorID,
		MemberCount:     model.MemberCount,
		IsPrivate:       model.IsPrivate,
		ProfileImageURL: model.ProfileImageURL,
		CreatedAt:       model.CreatedAt,
	}

	for _, member := range model.Members {
		if member.UserID == viewerID {
			resp.IsMember = true
			resp.IsAdmin = member.IsAdmin()
		}
	}

	if !resp.IsMember {
		return resp
	}

	resp.Members = make([]string, 0, len(model.Members))
	for _, member := range model.Members {
		resp.Members = append(resp.Members, member.UserID)
		if member.IsAdmin() {
			resp.Admins = append(resp.Admins, member.UserID)
		}
	}
	sort.Strings(resp.Members)
	sort.Strings(resp.Admins)

	if model.InviteCode != nil {
		resp.InviteCode = *model.InviteCode
	}
	resp.InnerGroups = FilterInnerGroups(model.InnerGroups, viewerID)

	return resp
}

// NewGroupResponseSlice converts groups for a viewer.
func NewGroupResponseSlice(groups []models.Group, viewerID string) []GroupResponse {
	out := make([]GroupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, NewGroupResponse(group, viewerID))
	}
	return out
}
