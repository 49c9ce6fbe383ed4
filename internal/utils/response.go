package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every REST endpoint answers with.
type APIResponse struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// SendSuccess sends a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success envelope with the given status code.
// 201 and 207 are used by create and batch upload endpoints.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error envelope.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithDetails(c, status, message, nil)
}

// SendErrorWithDetails sends an error envelope carrying per-field details,
// used for payload validation failures.
func SendErrorWithDetails(c *fiber.Ctx, status int, message string, details map[string]string) error {
	if message == "" {
		message = "error"
	}
	if len(details) == 0 {
		details = nil
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Details: details,
	})
}
