// Package chatapi holds the JSON wire types of the group chat API. The server
// encodes them and the chatclient SDK decodes them, so both sides agree on one
// definition.
package chatapi

import "time"

// Feed orderings.
const (
	OrderAscending  = "asc"
	OrderDescending = "desc"
)

// SendMessageRequest is an outgoing text message.
type SendMessageRequest struct {
	Text       string `json:"text" validate:"required,min=1,max=4000"`
	SenderName string `json:"sender_name" validate:"omitempty,max=120"`
	ReplyToID  string `json:"reply_to_id" validate:"omitempty,max=36"`
}

// ReplySnapshot is the copy of a replied-to message taken at send time.
type ReplySnapshot struct {
	MessageID  string `json:"message_id"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	MediaName  string `json:"media_name,omitempty"`
}

// MessageView is a message decorated with per-viewer state.
type MessageView struct {
	ID            string         `json:"id"`
	Conversation  string         `json:"conversation"`
	SenderID      string         `json:"sender_id"`
	SenderName    string         `json:"sender_name"`
	Kind          string         `json:"kind"`
	Text          string         `json:"text"`
	MediaURL      string         `json:"media_url,omitempty"`
	MediaName     string         `json:"media_name,omitempty"`
	MediaSize     int64          `json:"media_size,omitempty"`
	MediaDuration float64        `json:"media_duration,omitempty"`
	ThumbnailURL  string         `json:"thumbnail_url,omitempty"`
	IsRead        bool           `json:"is_read"`
	ReadBy        []string       `json:"read_by"`
	StarredBy     []string       `json:"starred_by"`
	IsStarred     bool           `json:"is_starred"`
	StarredAt     *time.Time     `json:"starred_at,omitempty"`
	IsPinned      bool           `json:"is_pinned"`
	IsMine        bool           `json:"is_mine"`
	ReplyTo       *ReplySnapshot `json:"reply_to,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// FeedSnapshot is the full visible state of a conversation at a point in time.
type FeedSnapshot struct {
	Conversation    string        `json:"conversation"`
	Scope           string        `json:"scope"`
	Order           string        `json:"order"`
	Messages        []MessageView `json:"messages"`
	PinnedMessageID string        `json:"pinned_message_id,omitempty"`
	At              time.Time     `json:"at"`
}

// TypingRequest publishes the caller's typing state.
type TypingRequest struct {
	Typing bool  `json:"typing"`
	At     int64 `json:"at"`
}

// TypingResponse lists the other participants currently typing.
type TypingResponse struct {
	Conversation string   `json:"conversation"`
	Users        []string `json:"users"`
}

// WindowDecision says whether a send is allowed now and, if not, why.
type WindowDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Start   string `json:"start_time,omitempty"`
	End     string `json:"end_time,omitempty"`
}

// WindowResponse reports the send-window state of a conversation.
type WindowResponse struct {
	Conversation string `json:"conversation"`
	WindowDecision
}

// ConversationResponse is the list-view summary of a conversation.
type ConversationResponse struct {
	Path            string            `json:"path"`
	Scope           string            `json:"scope"`
	LastMessageText string            `json:"last_message_text"`
	LastMessageKind string            `json:"last_message_kind"`
	LastSenderID    string            `json:"last_sender_id"`
	LastMessageAt   *time.Time        `json:"last_message_at,omitempty"`
	Participants    map[string]string `json:"participants"`
	PinnedMessageID string            `json:"pinned_message_id,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
