package handler

import (
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

// UploadHandler accepts media and voice uploads for a conversation.
type UploadHandler struct {
	service   service.UploadService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewUploadHandler constructs an upload handler.
func NewUploadHandler(service service.UploadService, validator *validator.Validate, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register wires upload routes under a conversation router.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/uploads", h.upload)
	router.Post("/voice", h.voice)
	router.Get("/uploads/:uploadId/progress", h.progress)
}

func (h *UploadHandler) upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	files := append([]*multipart.FileHeader{}, form.File["files"]...)
	files = append(files, form.File["file"]...)
	return h.store(c, files, false)
}

func (h *UploadHandler) voice(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrUploadMissingFile.Error())
	}
	return h.store(c, []*multipart.FileHeader{file}, true)
}

func (h *UploadHandler) store(c *fiber.Ctx, files []*multipart.FileHeader, voice bool) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "upload")
	}

	var opts dto.UploadOptions
	if err := c.BodyParser(&opts); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form fields")
	}
	if err := h.validator.Struct(opts); err != nil {
		return respondError(c, h.logger, err, "upload")
	}
	opts.Voice = voice
	if opts.SenderName == "" {
		opts.SenderName = middleware.UserName(c)
	}

	result, err := h.service.UploadBatch(withRequestContext(c), loc, middleware.UserID(c), files, opts)
	if err != nil {
		return respondError(c, h.logger, err, "upload")
	}

	status := fiber.StatusCreated
	if result.Failed > 0 {
		status = fiber.StatusMultiStatus
	}
	return utils.SendSuccessWithStatus(c, status, "upload processed", result)
}

func (h *UploadHandler) progress(c *fiber.Ctx) error {
	loc, err := conversationFromParams(c)
	if err != nil {
		return respondError(c, h.logger, err, "read upload progress")
	}

	progress, err := h.service.Progress(withRequestContext(c), loc, middleware.UserID(c), c.Params("uploadId"))
	if err != nil {
		return respondError(c, h.logger, err, "read upload progress")
	}
	return utils.SendSuccess(c, "upload progress", progress)
}
