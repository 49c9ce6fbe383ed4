package models

import (
	"time"

	"gorm.io/datatypes"
)

// Group membership roles.
const (
	GroupRoleMember = "member"
	GroupRoleAdmin  = "admin"
)

// Group is a top-level community with its own conversation.
type Group struct {
	ID              string        `gorm:"primaryKey;size:36" json:"id"`
	Name            string        `gorm:"size:120;not null" json:"name"`
	Description     string        `gorm:"type:text" json:"description"`
	CreatorID       string        `gorm:"size:64;index;not null" json:"creator_id"`
	MemberCount     int           `gorm:"not null;default:0" json:"member_count"`
	IsPrivate       bool          `gorm:"not null;default:false;index" json:"is_private"`
	InviteCode      *string       `gorm:"size:6;uniqueIndex" json:"invite_code,omitempty"`
	ProfileImageURL string        `gorm:"size:512" json:"profile_image_url,omitempty"`
	Members         []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	InnerGroups     []InnerGroup  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"inner_groups,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// GroupMember links a user to a group. The composite key rejects duplicate membership.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID   string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	Role     string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// IsAdmin reports whether the membership carries admin rights.
func (m GroupMember) IsAdmin() bool {
	return m.Role == GroupRoleAdmin
}

// InnerGroup is a time-windowed sub-conversation owned by a Group.
type InnerGroup struct {
	ID        string                      `gorm:"primaryKey;size:36" json:"id"`
	GroupID   string                      `gorm:"size:36;index;not null" json:"group_id"`
	Name      string                      `gorm:"size:120;not null" json:"name"`
	StartTime string                      `gorm:"size:5" json:"start_time,omitempty"`
	EndTime   string                      `gorm:"size:5" json:"end_time,omitempty"`
	Members   datatypes.JSONSlice[string] `json:"members"`
	IsActive  bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatorID string                      `gorm:"size:64" json:"creator_id"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// HasMember reports whether userID belongs to the inner group.
func (g InnerGroup) HasMember(userID string) bool {
	for _, member := range g.Members {
		if member == userID {
			return true
		}
	}
	return false
}
