package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID, "name": "User " + userID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// subjectOf verifies the bearer token the way the API does.
func subjectOf(r *http.Request) string {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	if err != nil || !token.Valid {
		return ""
	}
	subject, _ := token.Claims.GetSubject()
	return subject
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < http.StatusMultipleChoices,
		"message": message,
		"data":    data,
	})
}

func TestClientSendTextAddressesInnerGroup(t *testing.T) {
	var gotPath, gotUser string
	var gotBody chatapi.SendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser = subjectOf(r)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, http.StatusCreated, "message sent", chatapi.MessageView{ID: "m1", Text: gotBody.Text, SenderID: gotUser})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Token: signToken(t, "u1")})
	message, err := client.SendText(context.Background(), Conversation{GroupID: "G1", InnerGroupID: "I2"}, chatapi.SendMessageRequest{Text: "hi", ReplyToID: "m0"})
	require.NoError(t, err)

	require.Equal(t, "/api/v1/groups/G1/inner-groups/I2/messages", gotPath)
	require.Equal(t, "u1", gotUser)
	require.Equal(t, "m0", gotBody.ReplyToID)
	require.Equal(t, "m1", message.ID)
	require.Equal(t, "u1", message.SenderID)
}

func TestClientMetadataAndListMineDecodePreviews(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		preview := &chatapi.ConversationResponse{Path: "chats/G1_I2", Scope: "chat", LastMessageText: "night note", Participants: map[string]string{"alice": "Alice"}}
		switch r.URL.Path {
		case "/api/v1/groups/G1/inner-groups/I2/conversation":
			writeEnvelope(w, http.StatusOK, "conversation", preview)
		case "/api/v1/groups/mine":
			writeEnvelope(w, http.StatusOK, "groups", []chatapi.GroupResponse{{
				ID:          "G1",
				InnerGroups: []chatapi.InnerGroupResponse{{ID: "I2", GroupID: "G1", Conversation: preview}},
			}})
		default:
			writeEnvelope(w, http.StatusNotFound, "not found", nil)
		}
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	meta, err := client.Metadata(context.Background(), Conversation{GroupID: "G1", InnerGroupID: "I2"})
	require.NoError(t, err)
	require.Equal(t, "night note", meta.LastMessageText)
	require.Equal(t, "Alice", meta.Participants["alice"])

	groups, err := client.ListMine(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].InnerGroups[0].Conversation)
	require.Equal(t, "chats/G1_I2", groups[0].InnerGroups[0].Conversation.Path)
	require.Equal(t, []string{"/api/v1/groups/G1/inner-groups/I2/conversation", "/api/v1/groups/mine"}, paths)
}

func TestClientReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusForbidden, "Messages can only be sent between 9:00 AM and 5:00 PM", nil)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.SendText(context.Background(), Conversation{GroupID: "G1", InnerGroupID: "I2"}, chatapi.SendMessageRequest{Text: "late"})

	apiErr, ok := asAPIError(err)
	require.True(t, ok)
	require.True(t, apiErr.IsPermission())
	require.Equal(t, "Messages can only be sent between 9:00 AM and 5:00 PM", apiErr.Message)
}

func TestClientDeleteAlwaysConfirms(t *testing.T) {
	var method, confirm string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		confirm = r.URL.Query().Get("confirm")
		writeEnvelope(w, http.StatusOK, "message deleted", nil)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	require.NoError(t, client.Delete(context.Background(), Conversation{GroupID: "G1"}, "m1"))
	require.Equal(t, http.MethodDelete, method)
	require.Equal(t, "true", confirm)
}

func TestSubscriptionReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subjectOf(r) == "" {
			writeEnvelope(w, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		_ = conn.WriteJSON(chatapi.RealtimeFrame{Type: chatapi.FrameSnapshot, Data: chatapi.FeedSnapshot{Conversation: "groups/G1/messages", Messages: []chatapi.MessageView{{ID: "m" + string(rune('0'+n))}}}})
		// Drop the connection to force a reconnect.
		_ = conn.Close()
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Token: signToken(t, "u1"), ReconnectInitial: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond})

	var (
		mu  sync.Mutex
		ids []string
	)
	sub := client.Subscribe(context.Background(), Conversation{GroupID: "G1"}, func(frame Frame) {
		if frame.Type != chatapi.FrameSnapshot {
			return
		}
		snapshot, err := frame.Snapshot()
		if err != nil || len(snapshot.Messages) == 0 {
			return
		}
		mu.Lock()
		ids = append(ids, snapshot.Messages[0].ID)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	sub.Close()
	require.NoError(t, sub.Err())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"m1", "m2"}, ids[:2])
}

func TestSubscriptionStopsWhenRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusForbidden, "not a member of this conversation", nil)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, ReconnectInitial: 10 * time.Millisecond})
	sub := client.Subscribe(context.Background(), Conversation{GroupID: "G1", InnerGroupID: "I2"}, nil)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription kept retrying a refused feed")
	}

	apiErr, ok := asAPIError(sub.Err())
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "not a member of this conversation", apiErr.Message)

	require.ErrorIs(t, sub.Send(chatapi.InboundFrame{Type: chatapi.InboundTyping}), ErrNotConnected)
}
