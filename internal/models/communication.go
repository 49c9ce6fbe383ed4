package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message kinds.
const (
	MessageKindText     = "text"
	MessageKindImage    = "image"
	MessageKindVideo    = "video"
	MessageKindDocument = "document"
	MessageKindVoice    = "voice"
)

// Message is a single entry of a conversation feed. Conversation holds the
// resolved messages path of the owning conversation.
type Message struct {
	ID            string                      `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Conversation  string                      `gorm:"size:255;not null;index:idx_messages_conversation_created,priority:1" bson:"conversation" json:"conversation"`
	GroupID       string                      `gorm:"size:36;index" bson:"group_id" json:"group_id"`
	InnerGroupID  string                      `gorm:"size:36" bson:"inner_group_id,omitempty" json:"inner_group_id,omitempty"`
	SenderID      string                      `gorm:"size:64;index;not null" bson:"sender_id" json:"sender_id"`
	SenderName    string                      `gorm:"size:120" bson:"sender_name" json:"sender_name"`
	Kind          string                      `gorm:"size:16;not null;default:text" bson:"kind" json:"kind"`
	Text          string                      `gorm:"type:text" bson:"text" json:"text"`
	MediaURL      string                      `gorm:"size:512" bson:"media_url,omitempty" json:"media_url,omitempty"`
	MediaName     string                      `gorm:"size:255" bson:"media_name,omitempty" json:"media_name,omitempty"`
	MediaSize     int64                       `bson:"media_size,omitempty" json:"media_size,omitempty"`
	MediaDuration float64                     `bson:"media_duration,omitempty" json:"media_duration,omitempty"`
	ThumbnailURL  string                      `gorm:"size:512" bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	IsRead        bool                        `gorm:"not null;default:false" bson:"is_read" json:"is_read"`
	ReadBy        datatypes.JSONSlice[string] `bson:"read_by" json:"read_by"`
	StarredBy     datatypes.JSONSlice[string] `bson:"starred_by" json:"starred_by"`
	StarredAt     *time.Time                  `bson:"starred_at,omitempty" json:"starred_at,omitempty"`
	IsPinned      bool                        `gorm:"not null;default:false" bson:"is_pinned" json:"is_pinned"`
	ReplyTo       *ReplySnapshot              `gorm:"serializer:json;type:text" bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	CreatedAt     time.Time                   `gorm:"index:idx_messages_conversation_created,priority:2" bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time                   `bson:"updated_at" json:"updated_at"`
}

// ReplySnapshot is the denormalised copy of the message being replied to.
type ReplySnapshot struct {
	MessageID  string `bson:"message_id" json:"message_id"`
	Text       string `bson:"text" json:"text"`
	Kind       string `bson:"kind" json:"kind"`
	SenderID   string `bson:"sender_id" json:"sender_id"`
	SenderName string `bson:"sender_name" json:"sender_name"`
	MediaName  string `bson:"media_name,omitempty" json:"media_name,omitempty"`
}

// ConversationMeta is the list-view summary of a group or inner-group conversation.
type ConversationMeta struct {
	Path            string            `gorm:"primaryKey;size:255" bson:"_id" json:"path"`
	Scope           string            `gorm:"size:16;not null" bson:"scope" json:"scope"`
	GroupID         string            `gorm:"size:36;index" bson:"group_id" json:"group_id"`
	InnerGroupID    string            `gorm:"size:36" bson:"inner_group_id,omitempty" json:"inner_group_id,omitempty"`
	LastMessageText string            `gorm:"type:text" bson:"last_message_text" json:"last_message_text"`
	LastMessageKind string            `gorm:"size:16" bson:"last_message_kind" json:"last_message_kind"`
	LastSenderID    string            `gorm:"size:64" bson:"last_sender_id" json:"last_sender_id"`
	LastMessageAt   *time.Time        `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	Participants    datatypes.JSONMap `gorm:"type:json" bson:"participants" json:"participants"`
	PinnedMessageID *string           `gorm:"size:36" bson:"pinned_message_id" json:"pinned_message_id,omitempty"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updated_at"`
}

// TableName keeps conversation metadata under a short table name.
func (ConversationMeta) TableName() string {
	return "conversations"
}

// UploadRecord stores metadata about a file pushed to object storage.
type UploadRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UploadID     string    `gorm:"size:36;index" json:"upload_id"`
	UserID       string    `gorm:"size:64;index" json:"user_id"`
	Conversation string    `gorm:"size:255;index" json:"conversation"`
	FileName     string    `gorm:"size:255;not null" json:"file_name"`
	URL          string    `gorm:"size:512;not null" json:"url"`
	MimeType     string    `gorm:"size:128;not null" json:"mime_type"`
	Kind         string    `gorm:"size:16" json:"kind"`
	SizeBytes    int64     `gorm:"not null" json:"size_bytes"`
	Checksum     string    `gorm:"size:128;index" json:"checksum"`
	CreatedAt    time.Time `json:"created_at"`
}
