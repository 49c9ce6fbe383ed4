package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

// GroupHandler exposes group, membership and inner-group endpoints.
type GroupHandler struct {
	service service.GroupService
	logger  zerolog.Logger
}

// NewGroupHandler constructs a group handler.
func NewGroupHandler(service service.GroupService, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		logger:  logger.With().Str("component", "group_handler").Logger(),
	}
}

// Register binds group routes. Static segments are registered before :groupId.
func (h *GroupHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/discover", h.discover)
	router.Get("/mine", h.listMine)
	router.Post("/join", h.joinByCode)

	router.Get("/:groupId", h.get)
	router.Patch("/:groupId", h.update)
	router.Post("/:groupId/join", h.joinPublic)
	router.Post("/:groupId/leave", h.leave)
	router.Post("/:groupId/invite-code", h.regenerateInviteCode)
	router.Put("/:groupId/admins/:userId", h.promote)
	router.Delete("/:groupId/admins/:userId", h.demote)

	router.Post("/:groupId/inner-groups", h.createInnerGroup)
	router.Patch("/:groupId/inner-groups/:innerId", h.updateInnerGroup)
	router.Post("/:groupId/inner-groups/:innerId/members", h.addInnerMember)
	router.Delete("/:groupId/inner-groups/:innerId/members/:userId", h.removeInnerMember)
}

func (h *GroupHandler) create(c *fiber.Ctx) error {
	var payload dto.GroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	group, err := h.service.Create(withRequestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create group")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group created", group)
}

func (h *GroupHandler) discover(c *fiber.Ctx) error {
	var query dto.GroupDiscoverQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	groups, err := h.service.Discover(withRequestContext(c), middleware.UserID(c), query)
	if err != nil {
		return respondError(c, h.logger, err, "discover groups")
	}
	return utils.SendSuccess(c, "groups", groups)
}

func (h *GroupHandler) listMine(c *fiber.Ctx) error {
	groups, err := h.service.ListMine(withRequestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "list groups")
	}
	return utils.SendSuccess(c, "groups", groups)
}

func (h *GroupHandler) joinByCode(c *fiber.Ctx) error {
	var payload dto.JoinGroupRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	group, err := h.service.JoinByInviteCode(withRequestContext(c), payload.InviteCode, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "join group")
	}
	return utils.SendSuccess(c, "joined group", group)
}

func (h *GroupHandler) get(c *fiber.Ctx) error {
	group, err := h.service.Get(withRequestContext(c), c.Params("groupId"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "get group")
	}
	return utils.SendSuccess(c, "group", group)
}

func (h *GroupHandler) update(c *fiber.Ctx) error {
	var payload dto.GroupUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	group, err := h.service.Update(withRequestContext(c), c.Params("groupId"), middleware.UserID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "update group")
	}
	return utils.SendSuccess(c, "group updated", group)
}

func (h *GroupHandler) joinPublic(c *fiber.Ctx) error {
	group, err := h.service.JoinPublic(withRequestContext(c), c.Params("groupId"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "join group")
	}
	return utils.SendSuccess(c, "joined group", group)
}

func (h *GroupHandler) leave(c *fiber.Ctx) error {
	if err := h.service.Leave(withRequestContext(c), c.Params("groupId"), middleware.UserID(c)); err != nil {
		return respondError(c, h.logger, err, "leave group")
	}
	return utils.SendSuccess(c, "left group", nil)
}

func (h *GroupHandler) regenerateInviteCode(c *fiber.Ctx) error {
	group, err := h.service.RegenerateInviteCode(withRequestContext(c), c.Params("groupId"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, err, "regenerate invite code")
	}
	return utils.SendSuccess(c, "invite code regenerated", group)
}

func (h *GroupHandler) promote(c *fiber.Ctx) error {
	if err := h.service.PromoteAdmin(withRequestContext(c), c.Params("groupId"), middleware.UserID(c), c.Params("userId")); err != nil {
		return respondError(c, h.logger, err, "promote admin")
	}
	return utils.SendSuccess(c, "admin added", nil)
}

func (h *GroupHandler) demote(c *fiber.Ctx) error {
	if err := h.service.DemoteAdmin(withRequestContext(c), c.Params("groupId"), middleware.UserID(c), c.Params("userId")); err != nil {
		return respondError(c, h.logger, err, "demote admin")
	}
	return utils.SendSuccess(c, "admin removed", nil)
}

func (h *GroupHandler) createInnerGroup(c *fiber.Ctx) error {
	var payload dto.InnerGroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	inner, err := h.service.CreateInnerGroup(withRequestContext(c), c.Params("groupId"), middleware.UserID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create inner group")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "inner group created", inner)
}

func (h *GroupHandler) updateInnerGroup(c *fiber.Ctx) error {
	var payload dto.InnerGroupUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	inner, err := h.service.UpdateInnerGroup(withRequestContext(c), c.Params("groupId"), c.Params("innerId"), middleware.UserID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "update inner group")
	}
	return utils.SendSuccess(c, "inner group updated", inner)
}

func (h *GroupHandler) addInnerMember(c *fiber.Ctx) error {
	var payload dto.InnerGroupMemberRequest
	if err := c.BodyParser(&payload); err != nil || payload.UserID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user_id is required")
	}

	inner, err := h.service.AddInnerMember(withRequestContext(c), c.Params("groupId"), c.Params("innerId"), middleware.UserID(c), payload.UserID)
	if err != nil {
		return respondError(c, h.logger, err, "add inner group member")
	}
	return utils.SendSuccess(c, "member added", inner)
}

func (h *GroupHandler) removeInnerMember(c *fiber.Ctx) error {
	inner, err := h.service.RemoveInnerMember(withRequestContext(c), c.Params("groupId"), c.Params("innerId"), middleware.UserID(c), c.Params("userId"))
	if err != nil {
		return respondError(c, h.logger, err, "remove inner group member")
	}
	return utils.SendSuccess(c, "member removed", inner)
}
