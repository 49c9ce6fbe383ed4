package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/presence"
	"github.com/noah-isme/groupchat-api/internal/realtime"
)

// TypingService records typing flags and reports who else is typing.
type TypingService interface {
	SetTyping(ctx context.Context, loc conversation.Location, userID string, req dto.TypingRequest) error
	Others(ctx context.Context, loc conversation.Location, viewerID string) (dto.TypingResponse, error)
	// OthersTyping skips the access check; callers hold an authorised session.
	OthersTyping(ctx context.Context, loc conversation.Location, viewerID string) ([]string, error)
}

type typingService struct {
	store  *presence.Store
	access AccessChecker
	bus    realtime.Bus
	logger zerolog.Logger
}

// NewTypingService constructs a typing presence tracker.
func NewTypingService(store *presence.Store, access AccessChecker, bus realtime.Bus, logger zerolog.Logger) TypingService {
	return &typingService{
		store:  store,
		access: access,
		bus:    bus,
		logger: logger.With().Str("component", "typing_service").Logger(),
	}
}

func (s *typingService) SetTyping(ctx context.Context, loc conversation.Location, userID string, req dto.TypingRequest) error {
	if _, err := s.access.CanAccess(ctx, loc, userID); err != nil {
		return err
	}

	var clientAt time.Time
	if req.At > 0 {
		clientAt = time.UnixMilli(req.At)
	}

	won, err := s.store.Set(ctx, loc.MetadataPath, userID, req.Typing, clientAt)
	if err != nil {
		observability.TypingEvents().WithLabelValues("error").Inc()
		return err
	}
	if !won {
		observability.TypingEvents().WithLabelValues("stale").Inc()
		return nil
	}
	observability.TypingEvents().WithLabelValues("applied").Inc()

	payload, _ := json.Marshal(map[string]interface{}{"user_id": userID, "typing": req.Typing})
	if s.bus != nil {
		if err := s.bus.Publish(ctx, realtime.Change{
			Conversation: loc.MetadataPath,
			Kind:         realtime.KindTyping,
			ActorID:      userID,
			Payload:      payload,
		}); err != nil {
			s.logger.Debug().Err(err).Str("conversation", loc.MetadataPath).Msg("failed to fan out typing change")
		}
	}
	return nil
}

func (s *typingService) Others(ctx context.Context, loc conversation.Location, viewerID string) (dto.TypingResponse, error) {
	if _, err := s.access.CanAccess(ctx, loc, viewerID); err != nil {
		return dto.TypingResponse{}, err
	}
	users, err := s.OthersTyping(ctx, loc, viewerID)
	if err != nil {
		return dto.TypingResponse{}, err
	}
	return dto.TypingResponse{Conversation: loc.MetadataPath, Users: users}, nil
}

func (s *typingService) OthersTyping(ctx context.Context, loc conversation.Location, viewerID string) ([]string, error) {
	flags, err := s.store.Snapshot(ctx, loc.MetadataPath)
	if err != nil {
		return nil, err
	}
	return presence.OthersTyping(flags, viewerID), nil
}
