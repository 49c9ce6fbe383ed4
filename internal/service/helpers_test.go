package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/events"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/presence"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type chatFixture struct {
	db        *gorm.DB
	redis     *redis.Client
	bus       realtime.Bus
	publisher *recordingPublisher
	groups    GroupService
	messages  MessageService
	typing    TypingService
	feed      FeedService
	clock     time.Time
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Group{},
		&models.GroupMember{},
		&models.InnerGroup{},
		&models.Message{},
		&models.ConversationMeta{},
		&models.UploadRecord{},
	))
	return db
}

// newChatFixture wires the services over sqlite and miniredis. The message
// clock is fixed at 10:00 UTC unless a test moves it.
func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := setupServiceDB(t)
	validate := dto.NewValidator()
	publisher := &recordingPublisher{}
	emitter := events.NewEmitter(publisher, "test", testLogger())
	bus := realtime.NewBus(nil, "", nil, testLogger())

	conversations := repository.NewConversationRepository(db)
	groups := NewGroupService(repository.NewGroupRepository(db), conversations, emitter, bus, validate, testLogger())

	fx := &chatFixture{
		db:        db,
		redis:     client,
		bus:       bus,
		publisher: publisher,
		groups:    groups,
		clock:     time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
	}

	messages := NewMessageService(MessageServiceConfig{
		Messages:      repository.NewMessageRepository(db),
		Conversations: conversations,
		Access:        groups,
		Bus:           bus,
		Emitter:       emitter,
		Validator:     validate,
		Zone:          time.UTC,
	}, testLogger())
	messages.(*messageService).now = func() time.Time { return fx.clock }
	fx.messages = messages

	fx.typing = NewTypingService(presence.NewStore(client, "test:presence", 10*time.Second), groups, bus, testLogger())
	fx.feed = NewFeedService(messages, groups, bus, testLogger())
	return fx
}

func (fx *chatFixture) createGroup(t *testing.T, creator string, private bool) dto.GroupResponse {
	t.Helper()
	group, err := fx.groups.Create(context.Background(), creator, dto.GroupCreateRequest{Name: "Study Hall", IsPrivate: private})
	require.NoError(t, err)
	return group
}

func (fx *chatFixture) join(t *testing.T, group dto.GroupResponse, userID string) {
	t.Helper()
	_, err := fx.groups.JoinByInviteCode(context.Background(), group.InviteCode, userID)
	require.NoError(t, err)
}

func (fx *chatFixture) createInner(t *testing.T, group dto.GroupResponse, admin, start, end string, members ...string) conversation.Location {
	t.Helper()
	inner, err := fx.groups.CreateInnerGroup(context.Background(), group.ID, admin, dto.InnerGroupCreateRequest{
		Name:      "Night shift",
		StartTime: start,
		EndTime:   end,
		Members:   members,
	})
	require.NoError(t, err)
	return conversation.MustResolve(group.ID, inner.ID)
}

func (fx *chatFixture) sendText(t *testing.T, loc conversation.Location, senderID, text string) dto.MessageView {
	t.Helper()
	message, err := fx.messages.SendText(context.Background(), loc, senderID, dto.SendMessageRequest{Text: text})
	require.NoError(t, err)
	return message
}

func (fx *chatFixture) at(hour, minute int) {
	fx.clock = time.Date(2024, 5, 6, hour, minute, 0, 0, time.UTC)
}
