package dto

import (
	"time"

	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/sendwindow"
	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

// Feed orderings.
const (
	OrderAscending  = chatapi.OrderAscending
	OrderDescending = chatapi.OrderDescending
)

// Wire types shared with the chatclient SDK.
type (
	SendMessageRequest   = chatapi.SendMessageRequest
	MessageView          = chatapi.MessageView
	FeedSnapshot         = chatapi.FeedSnapshot
	TypingRequest        = chatapi.TypingRequest
	TypingResponse       = chatapi.TypingResponse
	WindowResponse       = chatapi.WindowResponse
	ConversationResponse = chatapi.ConversationResponse
)

// MediaMessageInput describes a stored media file that becomes a message.
type MediaMessageInput struct {
	Kind         string
	URL          string
	Name         string
	Size         int64
	Duration     float64
	ThumbnailURL string
	Caption      string
	SenderName   string
	ReplyToID    string
}

// MessageHistoryQuery filters the REST history endpoint.
type MessageHistoryQuery struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=500"`
}

// ProjectMessage derives the view state of message for viewerID. It is the
// only place per-viewer fields are computed.
func ProjectMessage(message models.Message, viewerID string) MessageView {
	return MessageView{
		ID:            message.ID,
		Conversation:  message.Conversation,
		SenderID:      message.SenderID,
		SenderName:    message.SenderName,
		Kind:          message.Kind,
		Text:          message.Text,
		MediaURL:      message.MediaURL,
		MediaName:     message.MediaName,
		MediaSize:     message.MediaSize,
		MediaDuration: message.MediaDuration,
		ThumbnailURL:  message.ThumbnailURL,
		IsRead:        message.IsRead,
		ReadBy:        copySet(message.ReadBy),
		StarredBy:     copySet(message.StarredBy),
		IsStarred:     contains(message.StarredBy, viewerID),
		StarredAt:     message.StarredAt,
		IsPinned:      message.IsPinned,
		IsMine:        viewerID != "" && message.SenderID == viewerID,
		ReplyTo:       projectReply(message.ReplyTo),
		CreatedAt:     message.CreatedAt,
	}
}

// ProjectMessages projects every message for viewerID, preserving order.
func ProjectMessages(messages []models.Message, viewerID string) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		out = append(out, ProjectMessage(message, viewerID))
	}
	return out
}

// NewWindowResponse reports decision for the conversation at path.
func NewWindowResponse(path string, decision sendwindow.Decision) WindowResponse {
	return WindowResponse{
		Conversation: path,
		WindowDecision: chatapi.WindowDecision{
			Allowed: decision.Allowed,
			Reason:  decision.Reason,
			Start:   decision.Start,
			End:     decision.End,
		},
	}
}

// EmptyConversationResponse describes a conversation nobody has written to yet.
func EmptyConversationResponse(path, scope string) ConversationResponse {
	return ConversationResponse{Path: path, Scope: scope, Participants: map[string]string{}}
}

// NewConversationResponse converts conversation metadata to its DTO.
func NewConversationResponse(meta models.ConversationMeta) ConversationResponse {
	participants := make(map[string]string, len(meta.Participants))
	for id, name := range meta.Participants {
		if s, ok := name.(string); ok {
			participants[id] = s
		}
	}
	resp := ConversationResponse{
		Path:            meta.Path,
		Scope:           meta.Scope,
		LastMessageText: meta.LastMessageText,
		LastMessageKind: meta.LastMessageKind,
		LastSenderID:    meta.LastSenderID,
		LastMessageAt:   meta.LastMessageAt,
		Participants:    participants,
		UpdatedAt:       meta.UpdatedAt,
	}
	if meta.PinnedMessageID != nil {
		resp.PinnedMessageID = *meta.PinnedMessageID
	}
	return resp
}

func projectReply(reply *models.ReplySnapshot) *chatapi.ReplySnapshot {
	if reply == nil {
		return nil
	}
	return &chatapi.ReplySnapshot{
		MessageID:  reply.MessageID,
		Text:       reply.Text,
		Kind:       reply.Kind,
		SenderID:   reply.SenderID,
		SenderName: reply.SenderName,
		MediaName:  reply.MediaName,
	}
}

func contains(set []string, value string) bool {
	if value == "" {
		return false
	}
	for _, item := range set {
		if item == value {
			return true
		}
	}
	return false
}

func copySet(set []string) []string {
	out := make([]string, len(set))
	copy(out, set)
	return out
}
