package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/groupchat-api/internal/config"
	"github.com/noah-isme/groupchat-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Components  map[string]string `json:"components,omitempty"`
}

// HealthProbe reports the state of one dependency, e.g. the storage breaker.
type HealthProbe struct {
	Name  string
	State func() string
}

// HealthCheck returns a handler that reports application health information.
// The service reports "degraded" when a probe returns anything but "closed" or "ok".
func HealthCheck(cfg config.Config, probes ...HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(probes) > 0 {
			payload.Components = make(map[string]string, len(probes))
			for _, probe := range probes {
				state := probe.State()
				payload.Components[probe.Name] = state
				if state != "closed" && state != "ok" {
					payload.Status = "degraded"
				}
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
