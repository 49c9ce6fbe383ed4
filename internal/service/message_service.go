package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/events"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/repository"
	"github.com/noah-isme/groupchat-api/internal/sendwindow"
)

// Send paths, used as metric labels.
const (
	SendPathText  = "text"
	SendPathMedia = "media"
	SendPathVoice = "voice"
)

const defaultHistoryLimit = 500

var (
	// ErrSendWindowClosed is matched by WindowClosedError.
	ErrSendWindowClosed = errors.New("send window is closed")
	// ErrDeleteNotConfirmed is returned when a delete was not explicitly confirmed.
	ErrDeleteNotConfirmed = errors.New("delete must be confirmed")
	// ErrReplyTargetNotFound is returned when the replied-to message is not in the conversation.
	ErrReplyTargetNotFound = errors.New("reply target not found in this conversation")
	// ErrDeleteForbidden is returned when neither the sender nor an admin deletes a message.
	ErrDeleteForbidden = errors.New("only the sender or a group admin can delete this message")
	// ErrEmptyMessage is returned when nothing is left after sanitisation.
	ErrEmptyMessage = errors.New("message text is empty")
)

var mediaPlaceholders = map[string]string{
	models.MessageKindImage:    "📷 Image",
	models.MessageKindVideo:    "🎥 Video",
	models.MessageKindDocument: "📄 Document",
	models.MessageKindVoice:    "🎤 Voice message",
}

// WindowClosedError carries the decision that rejected a send. Its message is
// the human readable reason.
type WindowClosedError struct {
	Decision sendwindow.Decision
}

func (e *WindowClosedError) Error() string {
	return e.Decision.Reason
}

func (e *WindowClosedError) Unwrap() error {
	return ErrSendWindowClosed
}

// MessageService applies sends and message actions to a conversation.
type MessageService interface {
	SendText(ctx context.Context, loc conversation.Location, senderID string, req dto.SendMessageRequest) (dto.MessageView, error)
	SendMedia(ctx context.Context, access ConversationAccess, senderID string, input dto.MediaMessageInput) (dto.MessageView, error)
	AuthorizeSend(ctx context.Context, loc conversation.Location, userID, path string) (ConversationAccess, error)
	Window(ctx context.Context, loc conversation.Location, userID string) (dto.WindowResponse, error)
	Conversation(ctx context.Context, loc conversation.Location, viewerID string) (dto.ConversationResponse, error)
	SetStar(ctx context.Context, loc conversation.Location, messageID, viewerID string, starred bool) (dto.MessageView, error)
	SetPinned(ctx context.Context, loc conversation.Location, messageID, actorID string, pinned bool) (dto.MessageView, error)
	ClearPinnedReference(ctx context.Context, loc conversation.Location, actorID string) error
	MarkRead(ctx context.Context, loc conversation.Location, messageID, viewerID string) (dto.MessageView, error)
	Delete(ctx context.Context, loc conversation.Location, messageID, actorID string, confirm bool) error
	History(ctx context.Context, loc conversation.Location, viewerID string, query dto.MessageHistoryQuery) ([]dto.MessageView, error)
	Snapshot(ctx context.Context, loc conversation.Location, viewerID string) (dto.FeedSnapshot, error)
}

// MessageServiceConfig wires a MessageService.
type MessageServiceConfig struct {
	Messages      repository.MessageRepository
	Conversations repository.ConversationRepository
	Access        AccessChecker
	Bus           realtime.Bus
	Emitter       *events.Emitter
	Validator     *validator.Validate
	Zone          *time.Location
	HistoryLimit  int
}

type messageService struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	access        AccessChecker
	bus           realtime.Bus
	emitter       *events.Emitter
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	zone          *time.Location
	limit         int
	now           func() time.Time
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewMessageService constructs the message action engine.
func NewMessageService(cfg MessageServiceConfig, logger zerolog.Logger) MessageService {
	zone := cfg.Zone
	if zone == nil {
		zone = time.Local
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return &messageService{
		messages:      cfg.Messages,
		conversations: cfg.Conversations,
		access:        cfg.Access,
		bus:           cfg.Bus,
		emitter:       cfg.Emitter,
		validator:     cfg.Validator,
		sanitizer:     bluemonday.StrictPolicy(),
		zone:          zone,
		limit:         limit,
		now:           time.Now,
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/groupchat-api/internal/service/message"),
	}
}

func (s *messageService) SendText(ctx context.Context, loc conversation.Location, senderID string, req dto.SendMessageRequest) (dto.MessageView, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageView{}, err
	}

	access, err := s.AuthorizeSend(ctx, loc, senderID, SendPathText)
	if err != nil {
		return dto.MessageView{}, err
	}

	text := s.clean(req.Text)
	if text == "" {
		return dto.MessageView{}, ErrEmptyMessage
	}

	message := models.Message{
		Kind:       models.MessageKindText,
		Text:       text,
		SenderName: strings.TrimSpace(req.SenderName),
	}
	return s.persist(ctx, access, senderID, req.ReplyToID, message)
}

func (s *messageService) SendMedia(ctx context.Context, access ConversationAccess, senderID string, input dto.MediaMessageInput) (dto.MessageView, error) {
	placeholder, ok := mediaPlaceholders[input.Kind]
	if !ok {
		return dto.MessageView{}, fmt.Errorf("unsupported media kind %q", input.Kind)
	}

	text := s.clean(input.Caption)
	if text == "" {
		text = placeholder
	}

	message := models.Message{
		Kind:          input.Kind,
		Text:          text,
		SenderName:    strings.TrimSpace(input.SenderName),
		MediaURL:      input.URL,
		MediaName:     input.Name,
		MediaSize:     input.Size,
		MediaDuration: input.Duration,
		ThumbnailURL:  input.ThumbnailURL,
	}
	return s.persist(ctx, access, senderID, input.ReplyToID, message)
}

// AuthorizeSend checks membership, the inner group's active flag and its send
// window. path labels rejections.
func (s *messageService) AuthorizeSend(ctx context.Context, loc conversation.Location, userID, path string) (ConversationAccess, error) {
	access, err := s.access.CanAccess(ctx, loc, userID)
	if err != nil {
		return ConversationAccess{}, err
	}
	if access.Inner != nil && !access.Inner.IsActive {
		return ConversationAccess{}, ErrInnerGroupInactive
	}

	start, end := access.Window()
	decision := sendwindow.CanSend(s.localNow(), start, end)
	if !decision.Allowed {
		observability.SendWindowRejections().WithLabelValues(path).Inc()
		return ConversationAccess{}, &WindowClosedError{Decision: decision}
	}
	return access, nil
}

func (s *messageService) Window(ctx context.Context, loc conversation.Location, userID string) (dto.WindowResponse, error) {
	access, err := s.access.CanAccess(ctx, loc, userID)
	if err != nil {
		return dto.WindowResponse{}, err
	}
	start, end := access.Window()
	return dto.NewWindowResponse(loc.MetadataPath, sendwindow.CanSend(s.localNow(), start, end)), nil
}

// Conversation returns the metadata record of a conversation, or an empty
// record when nothing was sent there yet.
func (s *messageService) Conversation(ctx context.Context, loc conversation.Location, viewerID string) (dto.ConversationResponse, error) {
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return dto.ConversationResponse{}, err
	}
	meta, err := s.conversations.Get(ctx, loc)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return dto.EmptyConversationResponse(loc.MetadataPath, string(loc.Scope)), nil
	}
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	return dto.NewConversationResponse(meta), nil
}

func (s *messageService) persist(ctx context.Context, access ConversationAccess, senderID, replyToID string, message models.Message) (dto.MessageView, error) {
	loc := access.Location
	ctx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(
		attribute.String("conversation", loc.MetadataPath),
		attribute.String("message.kind", message.Kind),
	))
	defer span.End()

	if replyToID = strings.TrimSpace(replyToID); replyToID != "" {
		target, err := s.messages.FindByID(ctx, loc.MessagesPath, replyToID)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				return dto.MessageView{}, ErrReplyTargetNotFound
			}
			return dto.MessageView{}, err
		}
		message.ReplyTo = &models.ReplySnapshot{
			MessageID:  target.ID,
			Text:       target.Text,
			Kind:       target.Kind,
			SenderID:   target.SenderID,
			SenderName: target.SenderName,
			MediaName:  target.MediaName,
		}
	}

	now := s.now().UTC()
	message.ID = uuid.NewString()
	message.Conversation = loc.MessagesPath
	message.GroupID = loc.GroupID
	message.InnerGroupID = loc.InnerGroupID
	message.SenderID = senderID
	message.ReadBy = datatypes.JSONSlice[string]{}
	message.StarredBy = datatypes.JSONSlice[string]{}
	message.CreatedAt = now
	message.UpdatedAt = now

	if err := s.messages.Create(ctx, &message); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.MessageView{}, fmt.Errorf("save message: %w", err)
	}

	if _, err := s.conversations.RecordMessage(ctx, loc, repository.LastMessage{
		Text:       message.Text,
		Kind:       message.Kind,
		SenderID:   senderID,
		SenderName: message.SenderName,
		At:         now,
	}); err != nil {
		s.logger.Warn().Err(err).Str("conversation", loc.MetadataPath).Msg("failed to update conversation metadata")
	}

	observability.MessagesSent().WithLabelValues(string(loc.Scope), message.Kind).Inc()
	s.notify(ctx, loc, realtime.KindMessageCreated, message.ID, senderID)
	s.emit(ctx, loc, events.TypeMessageSent, message.ID, senderID, map[string]string{"kind": message.Kind})

	return dto.ProjectMessage(message, senderID), nil
}

func (s *messageService) SetStar(ctx context.Context, loc conversation.Location, messageID, viewerID string, starred bool) (dto.MessageView, error) {
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return dto.MessageView{}, err
	}

	message, err := s.messages.SetStar(ctx, loc.MessagesPath, messageID, viewerID, starred, s.now().UTC())
	if err != nil {
		return dto.MessageView{}, err
	}

	action, eventType := "star", events.TypeMessageStarred
	if !starred {
		action, eventType = "unstar", events.TypeMessageUnstarred
	}
	observability.MessageActions().WithLabelValues(action).Inc()
	s.notify(ctx, loc, realtime.KindMessageUpdated, messageID, viewerID)
	s.emit(ctx, loc, eventType, messageID, viewerID, nil)

	return dto.ProjectMessage(message, viewerID), nil
}

func (s *messageService) SetPinned(ctx context.Context, loc conversation.Location, messageID, actorID string, pinned bool) (dto.MessageView, error) {
	if _, err := s.access.CanAccess(ctx, loc, actorID); err != nil {
		return dto.MessageView{}, err
	}

	message, err := s.messages.SetPinned(ctx, loc.MessagesPath, messageID, pinned)
	if err != nil {
		return dto.MessageView{}, err
	}

	action, eventType := "pin", events.TypeMessagePinned
	if pinned {
		id := message.ID
		if _, err := s.conversations.SetPinned(ctx, loc, &id); err != nil {
			return dto.MessageView{}, fmt.Errorf("set pinned reference: %w", err)
		}
	} else {
		action, eventType = "unpin", events.TypeMessageUnpinned
		if _, err := s.conversations.ClearPinnedIf(ctx, loc, message.ID); err != nil {
			return dto.MessageView{}, fmt.Errorf("clear pinned reference: %w", err)
		}
	}

	observability.MessageActions().WithLabelValues(action).Inc()
	s.notify(ctx, loc, realtime.KindMessageUpdated, messageID, actorID)
	s.notify(ctx, loc, realtime.KindConversationUpdated, "", actorID)
	s.emit(ctx, loc, eventType, messageID, actorID, nil)

	return dto.ProjectMessage(message, actorID), nil
}

func (s *messageService) ClearPinnedReference(ctx context.Context, loc conversation.Location, actorID string) error {
	if _, err := s.access.CanAccess(ctx, loc, actorID); err != nil {
		return err
	}
	if _, err := s.conversations.SetPinned(ctx, loc, nil); err != nil {
		return err
	}

	observability.MessageActions().WithLabelValues("clear_pin").Inc()
	s.notify(ctx, loc, realtime.KindConversationUpdated, "", actorID)
	s.emit(ctx, loc, events.TypePinCleared, "", actorID, nil)
	return nil
}

func (s *messageService) MarkRead(ctx context.Context, loc conversation.Location, messageID, viewerID string) (dto.MessageView, error) {
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return dto.MessageView{}, err
	}

	message, err := s.messages.MarkRead(ctx, loc.MessagesPath, messageID, viewerID)
	if err != nil {
		return dto.MessageView{}, err
	}

	observability.MessageActions().WithLabelValues("read").Inc()
	s.notify(ctx, loc, realtime.KindMessageUpdated, messageID, viewerID)
	s.emit(ctx, loc, events.TypeMessageRead, messageID, viewerID, nil)
	return dto.ProjectMessage(message, viewerID), nil
}

func (s *messageService) Delete(ctx context.Context, loc conversation.Location, messageID, actorID string, confirm bool) error {
	if !confirm {
		return ErrDeleteNotConfirmed
	}

	access, err := s.access.CanAccess(ctx, loc, actorID)
	if err != nil {
		return err
	}

	message, err := s.messages.FindByID(ctx, loc.MessagesPath, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != actorID && !access.IsAdmin() {
		return ErrDeleteForbidden
	}

	ctx, span := s.tracer.Start(ctx, "message.delete", trace.WithAttributes(
		attribute.String("conversation", loc.MetadataPath),
		attribute.String("message.id", messageID),
	))
	defer span.End()

	if err := s.messages.Delete(ctx, loc.MessagesPath, messageID); err != nil {
		span.RecordError(err)
		return err
	}

	cleared, err := s.conversations.ClearPinnedIf(ctx, loc, messageID)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", messageID).Msg("failed to clear pinned reference of deleted message")
	}

	observability.MessageActions().WithLabelValues("delete").Inc()
	s.notify(ctx, loc, realtime.KindMessageDeleted, messageID, actorID)
	if cleared {
		s.notify(ctx, loc, realtime.KindConversationUpdated, "", actorID)
	}
	s.emit(ctx, loc, events.TypeMessageDeleted, messageID, actorID, nil)
	return nil
}

func (s *messageService) History(ctx context.Context, loc conversation.Location, viewerID string, query dto.MessageHistoryQuery) ([]dto.MessageView, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	messages, err := s.load(ctx, loc, query.Before, limit)
	if err != nil {
		return nil, err
	}
	return dto.ProjectMessages(messages, viewerID), nil
}

// Snapshot loads the full visible state of the conversation for viewerID.
// Access is checked by the caller when the subscription is opened.
func (s *messageService) Snapshot(ctx context.Context, loc conversation.Location, viewerID string) (dto.FeedSnapshot, error) {
	messages, err := s.load(ctx, loc, nil, s.limit)
	if err != nil {
		return dto.FeedSnapshot{}, err
	}

	snapshot := dto.FeedSnapshot{
		Conversation: loc.MetadataPath,
		Scope:        string(loc.Scope),
		Order:        Order(loc),
		Messages:     dto.ProjectMessages(messages, viewerID),
		At:           s.now().UTC(),
	}

	meta, err := s.conversations.Get(ctx, loc)
	switch {
	case err == nil:
		if meta.PinnedMessageID != nil {
			snapshot.PinnedMessageID = *meta.PinnedMessageID
		}
	case errors.Is(err, repository.ErrConversationNotFound):
	default:
		return dto.FeedSnapshot{}, err
	}
	return snapshot, nil
}

// Order is the feed ordering of a conversation: group feeds read oldest first,
// inner-group chats newest first.
func Order(loc conversation.Location) string {
	if loc.IsChat() {
		return dto.OrderDescending
	}
	return dto.OrderAscending
}

// load returns the newest limit messages (before the cursor, when given) in
// the conversation's feed order.
func (s *messageService) load(ctx context.Context, loc conversation.Location, before *time.Time, limit int) ([]models.Message, error) {
	messages, err := s.messages.List(ctx, loc.MessagesPath, repository.MessageFilter{
		Before:     before,
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	if Order(loc) == dto.OrderAscending {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

func (s *messageService) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

func (s *messageService) localNow() time.Time {
	return s.now().In(s.zone)
}

func (s *messageService) notify(ctx context.Context, loc conversation.Location, kind, messageID, actorID string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, realtime.Change{
		Conversation: loc.MetadataPath,
		Kind:         kind,
		MessageID:    messageID,
		ActorID:      actorID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", loc.MetadataPath).Str("kind", kind).Msg("failed to fan out change")
	}
}

func (s *messageService) emit(ctx context.Context, loc conversation.Location, eventType, messageID, actorID string, data any) {
	s.emitter.Emit(ctx, events.Event{
		Type:         eventType,
		Conversation: loc.MetadataPath,
		GroupID:      loc.GroupID,
		InnerGroupID: loc.InnerGroupID,
		MessageID:    messageID,
		ActorID:      actorID,
	}, data)
}
