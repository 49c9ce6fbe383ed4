package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

const (
	localRequestContext = "request_ctx"
	localConversation   = "conversation"
)

// RealtimeHandler upgrades conversation feeds to websockets.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under a conversation router. Access is
// checked before the upgrade so outsiders receive a plain HTTP error.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Get("/ws", h.upgrade, websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "open feed")
	}

	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user id missing")
	}

	ctx := withRequestContext(c)
	if err := h.service.Authorize(ctx, loc, userID); err != nil {
		return respondError(c, h.logger, err, "open feed")
	}

	c.Locals(localRequestContext, ctx)
	c.Locals(localConversation, loc)
	return c.Next()
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	loc, _ := conn.Locals(localConversation).(conversation.Location)
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	userName, _ := conn.Locals(middleware.LocalUserName).(string)
	correlation, _ := conn.Locals(middleware.LocalCorrelationID).(string)
	baseCtx, _ := conn.Locals(localRequestContext).(context.Context)

	opts := service.RealtimeSessionOptions{
		Location:      loc,
		UserID:        userID,
		UserName:      userName,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	logger := h.logger.With().Str("user_id", userID).Str("conversation", loc.MessagesPath).Logger()
	logger.Info().Msg("feed websocket connected")
	h.service.ServeConnection(conn, opts)
	logger.Info().Msg("feed websocket disconnected")
}
