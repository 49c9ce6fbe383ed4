package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/groupchat-api/internal/utils"
)

// RateLimit throttles REST calls per user, falling back to the client IP. Websocket upgrades are
// skipped; the feed connection throttles its own inbound frames.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			key := UserID(c)
			if key == "" {
				key = c.IP()
			}
			return identifier + ":" + key
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, slow down")
		},
	})
}
