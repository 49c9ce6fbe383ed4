package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/repository"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/storage"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// conversationFromParams resolves the conversation addressed by the route.
// Inner-group routes carry :innerId; group routes do not.
func conversationFromParams(c *fiber.Ctx) (conversation.Location, error) {
	return conversation.Resolve(c.Params("groupId"), c.Params("innerId"))
}

// errorStatus maps service and repository errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case isValidationError(err),
		errors.Is(err, conversation.ErrGroupRequired),
		errors.Is(err, service.ErrDeleteNotConfirmed),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrUploadNoFiles),
		errors.Is(err, service.ErrUploadTooManyFiles),
		errors.Is(err, service.ErrUploadMissingFile),
		errors.Is(err, service.ErrUploadTypeNotAllowed),
		errors.Is(err, service.ErrUploadScanFailed):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotGroupMember),
		errors.Is(err, service.ErrNotGroupAdmin),
		errors.Is(err, service.ErrConversationForbidden),
		errors.Is(err, service.ErrGroupPrivate),
		errors.Is(err, service.ErrDeleteForbidden),
		errors.Is(err, service.ErrSendWindowClosed),
		errors.Is(err, service.ErrInnerGroupInactive):
		return fiber.StatusForbidden
	case errors.Is(err, repository.ErrGroupNotFound),
		errors.Is(err, repository.ErrInnerGroupNotFound),
		errors.Is(err, repository.ErrMessageNotFound),
		errors.Is(err, service.ErrInviteCodeInvalid),
		errors.Is(err, service.ErrUploadNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrLastAdmin):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrUploadTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrReplyTargetNotFound):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, service.ErrInviteCodeExhausted):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the error envelope. Unexpected failures are logged and
// answered with a generic message.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid payload", validationDetails(validationErrors))
	}

	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(action + " failed")
		return utils.SendError(c, status, action+" failed")
	}
	return utils.SendError(c, status, err.Error())
}
