package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/handler"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

// newAuthedApp mounts routes behind a stub that plays the role of JWTProtected.
func newAuthedApp(userID string, prefix string, register func(fiber.Router)) *fiber.App {
	app := fiber.New()
	group := app.Group(prefix, func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, userID)
		c.Locals(middleware.LocalUserName, "Name "+userID)
		return c.Next()
	})
	register(group)
	return app
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

type mockGroupService struct {
	service.GroupService

	calls     []string
	creatorID string
	lastCode  string
	group     dto.GroupResponse
	err       error
}

func (m *mockGroupService) Create(_ context.Context, creatorID string, _ dto.GroupCreateRequest) (dto.GroupResponse, error) {
	m.calls = append(m.calls, "create")
	m.creatorID = creatorID
	return m.group, m.err
}

func (m *mockGroupService) Discover(context.Context, string, dto.GroupDiscoverQuery) (dto.GroupListResponse, error) {
	m.calls = append(m.calls, "discover")
	return dto.GroupListResponse{Items: []dto.GroupResponse{m.group}}, m.err
}

func (m *mockGroupService) Get(context.Context, string, string) (dto.GroupResponse, error) {
	m.calls = append(m.calls, "get")
	return m.group, m.err
}

func (m *mockGroupService) JoinByInviteCode(_ context.Context, code, _ string) (dto.GroupResponse, error) {
	m.calls = append(m.calls, "join_code")
	m.lastCode = code
	return m.group, m.err
}

func (m *mockGroupService) Leave(context.Context, string, string) error {
	m.calls = append(m.calls, "leave")
	return m.err
}

func newGroupApp(svc *mockGroupService) *fiber.App {
	return newAuthedApp("u1", "/api/groups", func(router fiber.Router) {
		handler.NewGroupHandler(svc, zerolog.New(io.Discard)).Register(router)
	})
}

func TestGroupHandler_CreateReturnsCreated(t *testing.T) {
	svc := &mockGroupService{group: dto.GroupResponse{ID: "g1", Name: "Book club", MemberCount: 1}}
	app := newGroupApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/groups", map[string]interface{}{"name": "Book club"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool              `json:"success"`
		Data    dto.GroupResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "g1", body.Data.ID)
	require.Equal(t, "u1", svc.creatorID)
}

func TestGroupHandler_StaticRoutesAreNotShadowed(t *testing.T) {
	svc := &mockGroupService{group: dto.GroupResponse{ID: "g1"}}
	app := newGroupApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/groups/discover?search=book", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/groups/g1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, []string{"discover", "get"}, svc.calls)
}

func TestGroupHandler_JoinByCodeMapsErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "invalid code", err: service.ErrInviteCodeInvalid, status: fiber.StatusNotFound, message: service.ErrInviteCodeInvalid.Error()},
		{name: "already member", err: service.ErrAlreadyMember, status: fiber.StatusConflict, message: service.ErrAlreadyMember.Error()},
		{name: "unexpected", err: errors.New("db down"), status: fiber.StatusInternalServerError, message: "join group failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockGroupService{err: tc.err}
			app := newGroupApp(svc)

			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/groups/join", map[string]string{"invite_code": "abc123"}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var body envelope
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			require.Equal(t, tc.message, body.Message)
			require.Equal(t, "abc123", svc.lastCode)
		})
	}
}

func TestGroupHandler_LeaveAsLastAdminConflicts(t *testing.T) {
	svc := &mockGroupService{err: service.ErrLastAdmin}
	app := newGroupApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/groups/g1/leave", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGroupHandler_RejectsMalformedPayload(t *testing.T) {
	svc := &mockGroupService{}
	app := newGroupApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/groups", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.calls)
}
