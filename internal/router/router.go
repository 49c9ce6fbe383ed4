package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/groupchat-api/internal/config"
	"github.com/noah-isme/groupchat-api/internal/handler"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GroupHandler        *handler.GroupHandler
	ConversationHandler *handler.ConversationHandler
	UploadHandler       *handler.UploadHandler
	RealtimeHandler     *handler.RealtimeHandler
	HealthProbes        []handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	groups := api.Group("/groups", jwtMiddleware, middleware.RequireUser(), middleware.RateLimit("groups", cfg.RateLimitMax, cfg.RateLimitSpan))

	// Inner-group conversations first so their longer paths never fall
	// through to the group-level :groupId routes.
	inner := groups.Group("/:groupId/inner-groups/:innerId")
	group := groups.Group("/:groupId")
	for _, conversation := range []fiber.Router{inner, group} {
		if deps.ConversationHandler != nil {
			deps.ConversationHandler.Register(conversation)
		}
		if deps.UploadHandler != nil {
			deps.UploadHandler.Register(conversation)
		}
		if deps.RealtimeHandler != nil {
			deps.RealtimeHandler.Register(conversation)
		}
	}

	if deps.GroupHandler != nil {
		deps.GroupHandler.Register(groups)
	}
}
