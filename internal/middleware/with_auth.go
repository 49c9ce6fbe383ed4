package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/groupchat-api/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// AllowAnonymous lets requests without a user id through.
	AllowAnonymous bool
}

// WithAuth wraps a handler so it only runs for requests whose token carried a
// user id.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" && !opts.AllowAnonymous {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		return handler(c)
	}
}

// RequireUser is WithAuth as a route middleware.
func RequireUser() fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error {
		return c.Next()
	}, AuthOptions{})
}
