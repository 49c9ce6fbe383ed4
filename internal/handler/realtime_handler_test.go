package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/config"
	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/handler"
	"github.com/noah-isme/groupchat-api/internal/service"
)

type mockRealtimeService struct {
	authorized []conversation.Location
	err        error
	served     int
}

func (m *mockRealtimeService) Authorize(_ context.Context, loc conversation.Location, _ string) error {
	m.authorized = append(m.authorized, loc)
	return m.err
}

func (m *mockRealtimeService) ServeConnection(service.RealtimeConn, service.RealtimeSessionOptions) {
	m.served++
}

func newRealtimeApp(svc *mockRealtimeService) *fiber.App {
	return newAuthedApp("u1", "/api/groups", func(router fiber.Router) {
		h := handler.NewRealtimeHandler(svc, zerolog.New(io.Discard))
		h.Register(router.Group("/:groupId/inner-groups/:innerId"))
		h.Register(router.Group("/:groupId"))
	})
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	return req
}

func TestRealtimeHandler_RequiresUpgrade(t *testing.T) {
	svc := &mockRealtimeService{}
	app := newRealtimeApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/groups/g1/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
	require.Empty(t, svc.authorized)
}

func TestRealtimeHandler_OutsidersAreRejectedBeforeUpgrade(t *testing.T) {
	svc := &mockRealtimeService{err: service.ErrConversationForbidden}
	app := newRealtimeApp(svc)

	resp, err := app.Test(upgradeRequest("/api/groups/g1/inner-groups/i1/ws"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, []conversation.Location{conversation.MustResolve("g1", "i1")}, svc.authorized)
	require.Zero(t, svc.served)
}

func TestHealthCheck_ReportsDegradedProbe(t *testing.T) {
	app := fiber.New()
	state := "closed"
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "groupchat-api", AppEnv: "test"},
		handler.HealthProbe{Name: "storage", State: func() string { return state }},
	))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	var body struct {
		Data handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "ok", body.Data.Status)
	require.Equal(t, "closed", body.Data.Components["storage"])

	state = "open"
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	decodeResponse(t, resp, &body)
	require.Equal(t, "degraded", body.Data.Status)
}
