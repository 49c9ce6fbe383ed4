package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// LocalCorrelationID is the fiber.Ctx locals key holding the request's correlation id.
const LocalCorrelationID = "correlation_id"

type correlationIDKey struct{}

// CorrelationID tags every request with an id that follows it into service
// logs and published events. Browsers cannot set headers on a websocket
// handshake, so the feed endpoint also accepts it as a query parameter.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := firstNonEmpty(
			c.Get("X-Correlation-ID"),
			c.Get("X-Request-ID"),
			c.Query("correlation_id"),
		)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(LocalCorrelationID, id)
		c.Set("X-Correlation-ID", id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext returns the id stored by ContextWithCorrelation.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation id bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(LocalCorrelationID).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation id to ctx. Blank ids are ignored.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
