package chatapi

import "time"

// JoinGroupRequest joins a group by invite code.
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code" validate:"required,min=6,max=6,alphanum"`
}

// InnerGroupResponse is the viewer-facing representation of an inner group.
type InnerGroupResponse struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	Members   []string  `json:"members"`
	IsActive  bool      `json:"is_active"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	// Conversation carries the last-message preview in list views.
	Conversation *ConversationResponse `json:"conversation,omitempty"`
}

// GroupResponse is the representation of a group as seen by a viewer.
type GroupResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	CreatorID       string               `json:"creator_id"`
	MemberCount     int                  `json:"member_count"`
	IsPrivate       bool                 `json:"is_private"`
	InviteCode      string               `json:"invite_code,omitempty"`
	ProfileImageURL string               `json:"profile_image_url,omitempty"`
	Members         []string             `json:"members,omitempty"`
	Admins          []string             `json:"admins,omitempty"`
	IsMember        bool                 `json:"is_member"`
	IsAdmin         bool                 `json:"is_admin"`
	InnerGroups     []InnerGroupResponse `json:"inner_groups,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	// Conversation carries the last-message preview in list views.
	Conversation *ConversationResponse `json:"conversation,omitempty"`
}
