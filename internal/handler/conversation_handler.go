package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

// ConversationHandler exposes message, send-window and typing endpoints of a
// group or inner-group conversation.
type ConversationHandler struct {
	messages service.MessageService
	typing   service.TypingService
	logger   zerolog.Logger
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(messages service.MessageService, typing service.TypingService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		messages: messages,
		typing:   typing,
		logger:   logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register binds conversation routes under a router whose prefix carries
// :groupId and, for inner groups, :innerId.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("/messages", h.history)
	router.Post("/messages", h.send)
	router.Delete("/messages/pin", h.clearPin)
	router.Put("/messages/:messageId/star", h.star)
	router.Delete("/messages/:messageId/star", h.unstar)
	router.Put("/messages/:messageId/pin", h.pin)
	router.Delete("/messages/:messageId/pin", h.unpin)
	router.Post("/messages/:messageId/read", h.markRead)
	router.Delete("/messages/:messageId", h.delete)

	router.Get("/conversation", h.conversation)
	router.Get("/window", h.window)
	router.Get("/typing", h.othersTyping)
	router.Post("/typing", h.setTyping)
}

func (h *ConversationHandler) history(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "load messages")
	}

	before, err := parseQueryTime(c, "before")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	messages, err := h.messages.History(withRequestContext(c), loc, middleware.UserID(c), dto.MessageHistoryQuery{Before: before, Limit: limit})
	if err != nil {
		return respondError(c, h.logger, err, "load messages")
	}
	return utils.SendSuccess(c, "messages", messages)
}

func (h *ConversationHandler) send(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "send message")
	}

	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.SenderName == "" {
		payload.SenderName = middleware.UserName(c)
	}

	message, err := h.messages.SendText(withRequestContext(c), loc, middleware.UserID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ConversationHandler) star(c *fiber.Ctx) error {
	return h.setStar(c, true)
}

func (h *ConversationHandler) unstar(c *fiber.Ctx) error {
	return h.setStar(c, false)
}

func (h *ConversationHandler) setStar(c *fiber.Ctx, starred bool) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "star message")
	}

	message, err := h.messages.SetStar(withRequestContext(c), loc, c.Params("messageId"), middleware.UserID(c), starred)
	if err != nil {
		return respondError(c, h.logger, err, "star message")
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *ConversationHandler) pin(c *fiber.Ctx) error {
	return h.setPinned(c, true)
}

func (h *ConversationHandler) unpin(c *fiber.Ctx) error {
	return h.setPinned(c, false)
}

func (h *ConversationHandler) setPinned(c *fiber.Ctx, pinned bool) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "pin message")
	}

	message, err := h.messages.SetPinned(withRequestContext(c), loc, c.Params("messageId"), middleware.UserID(c), pinned)
	if err != nil {
		return respondError(c, h.logger, err, "pin message")
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *ConversationHandler) clearPin(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "clear pinned message")
	}

	if err := h.messages.ClearPinnedReference(withRequestContext(c), loc, middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err, "clear pinned message")
	}
	return utils.SendSuccess(c, "pinned message cleared", nil)
}

func (h *ConversationHandler) markRead(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "mark message read")
	}

	message, err := h.messages.MarkRead(withRequestContext(c), loc, c.Params("messageId"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "mark message read")
	}
	return utils.SendSuccess(c, "message read", message)
}

func (h *ConversationHandler) delete(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "delete message")
	}

	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	if err := h.messages.Delete(withRequestContext(c), loc, c.Params("messageId"), middleware.UserID(c), confirm); err != nil {
		return respondError(c, h.logger, err, "delete message")
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ConversationHandler) window(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "read send window")
	}

	window, err := h.messages.Window(withRequestContext(c), loc, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "read send window")
	}
	return utils.SendSuccess(c, "send window", window)
}

func (h *ConversationHandler) conversation(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "read conversation")
	}

	meta, err := h.messages.Conversation(withRequestContext(c), loc, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "read conversation")
	}
	return utils.SendSuccess(c, "conversation", meta)
}

func (h *ConversationHandler) othersTyping(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "read typing")
	}

	typing, err := h.typing.Others(withRequestContext(c), loc, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "read typing")
	}
	return utils.SendSuccess(c, "typing", typing)
}

func (h *ConversationHandler) setTyping(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "update typing")
	}

	var payload dto.TypingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.typing.SetTyping(withRequestContext(c), loc, middleware.UserID(c), payload); err != nil {
		return respondError(c, h.logger, err, "update typing")
	}
	return utils.SendSuccess(c, "typing updated", nil)
}
