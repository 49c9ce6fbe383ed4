package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/internal/observability"
)

// Observability records request metrics and one structured log line per API
// call. Websocket upgrades are logged on handshake only; the connection's
// lifetime would skew the latency histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api/") {
			return c.Next()
		}

		upgrade := strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		entry := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Str("user_id", UserID(c)).
			Logger()

		observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
		if upgrade {
			entry.Info().Msg("websocket handshake")
			return err
		}

		observability.HTTPLatency().WithLabelValues(method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := entry.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = entry.Error()
		case status >= fiber.StatusBadRequest:
			event = entry.Warn()
		}
		event.
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration)).
			Msg("request completed")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 50*time.Millisecond:
		return "<=50ms"
	case duration <= 250*time.Millisecond:
		return "<=250ms"
	case duration <= time.Second:
		return "<=1s"
	default:
		return ">1s"
	}
}
