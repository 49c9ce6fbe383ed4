package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
)

// fakeConn feeds inbound frames from a channel and records outbound JSON.
type fakeConn struct {
	inbound  chan []byte
	mu       sync.Mutex
	outbound []dto.RealtimeFrame
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-f.inbound:
		return 1, raw, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame dto.RealtimeFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, frame)
	return nil
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) frames(frameType string) []dto.RealtimeFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.RealtimeFrame
	for _, frame := range f.outbound {
		if frame.Type == frameType {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakeConn) waitFor(t *testing.T, frameType string, count int) []dto.RealtimeFrame {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.frames(frameType)) >= count }, 2*time.Second, 10*time.Millisecond, "waiting for %s frames", frameType)
	return f.frames(frameType)
}

func newRealtimeService(t *testing.T, fx *chatFixture) RealtimeService {
	t.Helper()
	svc, err := NewRealtimeService(RealtimeServiceConfig{
		Feed:     fx.feed,
		Messages: fx.messages,
		Typing:   fx.typing,
		Access:   fx.groups,
		Bus:      fx.bus,
		Zone:     time.UTC,
	}, testLogger())
	require.NoError(t, err)
	svc.(*realtimeService).clock = func() time.Time { return fx.clock }
	return svc
}

func serve(svc RealtimeService, conn *fakeConn, loc conversation.Location, userID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.ServeConnection(conn, RealtimeSessionOptions{Location: loc, UserID: userID, UserName: "User " + userID})
	}()
	return done
}

func TestRealtimeSessionSendsSnapshotAndAcksSends(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	loc := conversation.MustResolve(group.ID, "")
	svc := newRealtimeService(t, fx)

	conn := newFakeConn()
	done := serve(svc, conn, loc, "owner")

	conn.waitFor(t, dto.FrameSnapshot, 1)
	conn.inbound <- []byte(`{"type":"send","text":"hello","client_id":"c1"}`)

	acks := conn.waitFor(t, dto.FrameAck, 1)
	data, _ := json.Marshal(acks[0].Data)
	var ack dto.AckPayload
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, "c1", ack.ClientID)
	require.Equal(t, "hello", ack.Message.Text)
	require.Equal(t, "User owner", ack.Message.SenderName)

	conn.waitFor(t, dto.FrameSnapshot, 2)
	require.NoError(t, conn.Close())
	<-done
}

func TestRealtimeSessionRejectsInvalidFrames(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	loc := conversation.MustResolve(group.ID, "")
	svc := newRealtimeService(t, fx)

	conn := newFakeConn()
	done := serve(svc, conn, loc, "owner")
	conn.waitFor(t, dto.FrameSnapshot, 1)

	conn.inbound <- []byte(`{"type":"shout"}`)
	conn.inbound <- []byte(`{"type":"send"}`)
	conn.inbound <- []byte(`not json`)

	errorsSeen := conn.waitFor(t, dto.FrameError, 3)
	for _, frame := range errorsSeen {
		payload, ok := frame.Data.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, ErrInvalidFrame.Error(), payload["message"])
	}

	require.NoError(t, conn.Close())
	<-done
}

func TestRealtimeSessionRelaysTypingOfOthers(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	loc := conversation.MustResolve(group.ID, "")
	svc := newRealtimeService(t, fx)

	ownerConn := newFakeConn()
	ownerDone := serve(svc, ownerConn, loc, "owner")
	ownerConn.waitFor(t, dto.FrameSnapshot, 1)

	aliceConn := newFakeConn()
	aliceDone := serve(svc, aliceConn, loc, "alice")
	aliceConn.waitFor(t, dto.FrameSnapshot, 1)

	aliceConn.inbound <- []byte(`{"type":"typing","typing":true}`)

	require.Eventually(t, func() bool {
		for _, frame := range ownerConn.frames(dto.FrameTyping) {
			data, _ := json.Marshal(frame.Data)
			var typing dto.TypingResponse
			_ = json.Unmarshal(data, &typing)
			if len(typing.Users) == 1 && typing.Users[0] == "alice" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ownerConn.Close())
	require.NoError(t, aliceConn.Close())
	<-ownerDone
	<-aliceDone
}

func TestRealtimeSessionReportsWindowForInnerGroups(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	loc := fx.createInner(t, group, "owner", "09:00", "17:00")
	fx.at(18, 0)
	svc := newRealtimeService(t, fx)

	conn := newFakeConn()
	done := serve(svc, conn, loc, "owner")

	windows := conn.waitFor(t, dto.FrameWindow, 1)
	data, _ := json.Marshal(windows[0].Data)
	var window dto.WindowResponse
	require.NoError(t, json.Unmarshal(data, &window))
	require.False(t, window.Allowed)
	require.Equal(t, "Messages can only be sent between 9:00 AM and 5:00 PM", window.Reason)

	conn.inbound <- []byte(`{"type":"send","text":"late"}`)
	conn.waitFor(t, dto.FrameError, 1)

	require.NoError(t, conn.Close())
	<-done
}

func decodeWindow(t *testing.T, frame dto.RealtimeFrame) dto.WindowResponse {
	t.Helper()
	data, err := json.Marshal(frame.Data)
	require.NoError(t, err)
	var window dto.WindowResponse
	require.NoError(t, json.Unmarshal(data, &window))
	return window
}

func TestRealtimeSessionFollowsWindowEdits(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	loc := fx.createInner(t, group, "owner", "09:00", "17:00")
	fx.at(18, 0)
	svc := newRealtimeService(t, fx)

	conn := newFakeConn()
	done := serve(svc, conn, loc, "owner")

	windows := conn.waitFor(t, dto.FrameWindow, 1)
	require.False(t, decodeWindow(t, windows[0]).Allowed)

	end := "20:00"
	_, err := fx.groups.UpdateInnerGroup(context.Background(), group.ID, loc.InnerGroupID, "owner", dto.InnerGroupUpdateRequest{EndTime: &end})
	require.NoError(t, err)

	windows = conn.waitFor(t, dto.FrameWindow, 2)
	latest := decodeWindow(t, windows[len(windows)-1])
	require.True(t, latest.Allowed)

	conn.inbound <- []byte(`{"type":"send","text":"now open","client_id":"c1"}`)
	conn.waitFor(t, dto.FrameAck, 1)

	require.NoError(t, conn.Close())
	<-done
}

func TestRealtimeSessionClosesWhenRemovedFromInnerGroup(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	fx.join(t, group, "alice")
	loc := fx.createInner(t, group, "owner", "09:00", "17:00", "alice")
	svc := newRealtimeService(t, fx)

	conn := newFakeConn()
	done := serve(svc, conn, loc, "alice")
	conn.waitFor(t, dto.FrameWindow, 1)

	_, err := fx.groups.RemoveInnerMember(context.Background(), group.ID, loc.InnerGroupID, "owner", "alice")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session stayed open after its member was removed")
	}
	errorsSeen := conn.frames(dto.FrameError)
	require.Len(t, errorsSeen, 1)
	payload, ok := errorsSeen[0].Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, ErrConversationForbidden.Error(), payload["message"])
}

func TestRealtimeSessionKeepsOnlyNewestPendingSnapshot(t *testing.T) {
	session := &realtimeSession{
		send:     make(chan dto.RealtimeFrame, realtimeSendBufferSize),
		snapshot: make(chan dto.RealtimeFrame, 1),
		closed:   make(chan struct{}),
	}
	for i := 0; i < realtimeSendBufferSize; i++ {
		session.send <- dto.RealtimeFrame{Type: dto.FrameTyping}
	}

	for i := 1; i <= 5; i++ {
		session.pushSnapshot(dto.RealtimeFrame{Type: dto.FrameSnapshot, Data: dto.FeedSnapshot{Conversation: "groups/G1/messages", Messages: make([]dto.MessageView, i)}})
	}

	require.Len(t, session.snapshot, 1)
	frame := <-session.snapshot
	snapshot, ok := frame.Data.(dto.FeedSnapshot)
	require.True(t, ok)
	require.Len(t, snapshot.Messages, 5)
}

func TestRealtimeSessionRejectsOutsiders(t *testing.T) {
	fx := newChatFixture(t)
	group := fx.createGroup(t, "owner", false)
	loc := conversation.MustResolve(group.ID, "")
	svc := newRealtimeService(t, fx)

	require.ErrorIs(t, svc.Authorize(context.Background(), loc, "stranger"), ErrNotGroupMember)

	conn := newFakeConn()
	<-serve(svc, conn, loc, "stranger")
	require.Len(t, conn.frames(dto.FrameError), 1)
	require.Empty(t, conn.frames(dto.FrameSnapshot))
}
