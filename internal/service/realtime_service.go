package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/noah-isme/groupchat-api/internal/conversation"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/sendwindow"
)

const (
	realtimeSendBufferSize = 32
	realtimePingInterval   = 30 * time.Second
	realtimeMaxFrameBytes  = 16 * 1024
)

//go:embed schemas/inbound_frame.schema.json
var inboundFrameSchema string

// ErrInvalidFrame is reported to the client when an inbound frame does not
// match the frame contract.
var ErrInvalidFrame = errors.New("invalid frame")

// RealtimeConn is the part of a websocket connection a session needs.
type RealtimeConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// RealtimeSessionOptions wraps metadata extracted during the HTTP upgrade.
type RealtimeSessionOptions struct {
	Location      conversation.Location
	UserID        string
	UserName      string
	CorrelationID string
	Context       context.Context
}

// RealtimeService serves websocket sessions bound to one conversation.
type RealtimeService interface {
	// Authorize runs before the upgrade so rejected callers get a plain HTTP error.
	Authorize(ctx context.Context, loc conversation.Location, userID string) error
	ServeConnection(conn RealtimeConn, opts RealtimeSessionOptions)
}

// RealtimeServiceConfig wires a RealtimeService.
type RealtimeServiceConfig struct {
	Feed           FeedService
	Messages       MessageService
	Typing         TypingService
	Access         AccessChecker
	Bus            realtime.Bus
	Zone           *time.Location
	WindowInterval time.Duration
	// TypingRate bounds inbound typing frames per second; TypingBurst is the bucket size.
	TypingRate  float64
	TypingBurst int
}

type realtimeService struct {
	cfg    RealtimeServiceConfig
	schema *jsonschema.Schema
	clock  func() time.Time
	logger zerolog.Logger
}

// NewRealtimeService constructs the websocket session service.
func NewRealtimeService(cfg RealtimeServiceConfig, logger zerolog.Logger) (RealtimeService, error) {
	schema, err := jsonschema.CompileString("inbound_frame.schema.json", inboundFrameSchema)
	if err != nil {
		return nil, err
	}
	if cfg.Zone == nil {
		cfg.Zone = time.Local
	}
	if cfg.WindowInterval <= 0 {
		cfg.WindowInterval = 15 * time.Second
	}
	if cfg.TypingRate <= 0 {
		cfg.TypingRate = 5
	}
	if cfg.TypingBurst <= 0 {
		cfg.TypingBurst = 5
	}

	return &realtimeService{
		cfg:    cfg,
		schema: schema,
		clock:  time.Now,
		logger: logger.With().Str("component", "realtime_service").Logger(),
	}, nil
}

func (s *realtimeService) Authorize(ctx context.Context, loc conversation.Location, userID string) error {
	_, err := s.cfg.Access.CanAccess(ctx, loc, userID)
	return err
}

type realtimeSession struct {
	service *realtimeService
	conn    RealtimeConn
	options RealtimeSessionOptions
	access  ConversationAccess
	send    chan dto.RealtimeFrame
	// snapshot holds only the newest feed snapshot; older ones are superseded.
	snapshot chan dto.RealtimeFrame
	// accessChanged is signalled when the conversation's rules were edited.
	accessChanged chan struct{}
	revoked       chan error
	closed        chan struct{}
	once          sync.Once
	typing        *rate.Limiter
	ctx           context.Context
	cancel        context.CancelFunc
	logger        zerolog.Logger
}

func (s *realtimeService) ServeConnection(conn RealtimeConn, opts RealtimeSessionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = middleware.CorrelationIDFromContext(baseCtx)
	}
	ctx, cancel := context.WithCancel(baseCtx)

	session := &realtimeSession{
		service: s,
		conn:    conn,
		options: opts,
		send:          make(chan dto.RealtimeFrame, realtimeSendBufferSize),
		snapshot:      make(chan dto.RealtimeFrame, 1),
		accessChanged: make(chan struct{}, 1),
		revoked:       make(chan error, 1),
		closed:        make(chan struct{}),
		typing:        rate.NewLimiter(rate.Limit(s.cfg.TypingRate), s.cfg.TypingBurst),
		ctx:           ctx,
		cancel:        cancel,
		logger: s.logger.With().
			Str("conversation", opts.Location.MetadataPath).
			Str("user_id", opts.UserID).
			Str("correlation_id", opts.CorrelationID).
			Logger(),
	}

	access, err := s.cfg.Access.CanAccess(ctx, opts.Location, opts.UserID)
	if err != nil {
		session.rejectAndClose(err)
		return
	}
	session.access = access

	feed, err := s.cfg.Feed.Subscribe(ctx, opts.Location, opts.UserID)
	if err != nil {
		session.rejectAndClose(err)
		return
	}

	observability.RealtimeConnections().Inc()
	defer observability.RealtimeConnections().Dec()

	changes, unsubscribe := s.cfg.Bus.Subscribe(opts.Location.MetadataPath)

	var workers sync.WaitGroup
	workers.Add(3)
	go func() {
		defer workers.Done()
		session.pumpFeed(feed)
	}()
	go func() {
		defer workers.Done()
		session.pumpChanges(changes)
	}()
	go func() {
		defer workers.Done()
		session.writer()
	}()

	if opts.Location.IsChat() {
		workers.Add(1)
		go func() {
			defer workers.Done()
			session.watchWindow()
		}()
	}

	session.reader()

	session.close()
	feed.Close()
	unsubscribe()
	workers.Wait()
}

func (c *realtimeSession) rejectAndClose(err error) {
	c.logger.Debug().Err(err).Msg("realtime session rejected")
	_ = c.conn.WriteJSON(dto.RealtimeFrame{Type: dto.FrameError, Data: dto.ErrorPayload{Message: err.Error()}})
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
	c.close()
}

func (c *realtimeSession) pumpFeed(feed *FeedSubscription) {
	for {
		select {
		case <-c.closed:
			return
		case snapshot, ok := <-feed.Snapshots:
			if !ok {
				return
			}
			c.pushSnapshot(dto.RealtimeFrame{Type: dto.FrameSnapshot, Data: snapshot})
		}
	}
}

// pushSnapshot replaces any snapshot the writer has not sent yet. pumpFeed is
// the only producer, so the loop settles within two iterations.
func (c *realtimeSession) pushSnapshot(frame dto.RealtimeFrame) {
	for {
		select {
		case <-c.closed:
			return
		case c.snapshot <- frame:
			return
		default:
		}
		select {
		case <-c.snapshot:
			observability.RealtimeCoalesced().Inc()
		default:
		}
	}
}

// watchWindow reports the send window of an inner-group chat and restarts the
// watch with fresh bounds whenever the group's admins edit it. A caller who
// lost access is told so and disconnected.
func (c *realtimeSession) watchWindow() {
	cfg := c.service.cfg
	clock := func() time.Time { return c.service.clock().In(cfg.Zone) }
	access := c.access

	for {
		start, end := access.Window()
		watchCtx, stop := context.WithCancel(c.ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			sendwindow.Watch(watchCtx, clock, start, end, cfg.WindowInterval, func(decision sendwindow.Decision) {
				c.push(dto.RealtimeFrame{Type: dto.FrameWindow, Data: dto.NewWindowResponse(c.options.Location.MetadataPath, decision)})
			})
		}()

		select {
		case <-c.closed:
			stop()
			<-done
			return
		case <-c.accessChanged:
			stop()
			<-done
		}

		next, err := cfg.Access.CanAccess(c.ctx, c.options.Location, c.options.UserID)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.revoke(err)
			return
		}
		access = next
	}
}

// revoke hands err to the writer, which reports it and closes the connection.
func (c *realtimeSession) revoke(err error) {
	c.logger.Info().Err(err).Msg("realtime access revoked")
	select {
	case c.revoked <- err:
	default:
	}
}

func (c *realtimeSession) pumpChanges(changes <-chan realtime.Change) {
	for {
		select {
		case <-c.closed:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			switch change.Kind {
			case realtime.KindTyping:
				users, err := c.service.cfg.Typing.OthersTyping(c.ctx, c.options.Location, c.options.UserID)
				if err != nil {
					c.logger.Debug().Err(err).Msg("failed to read typing presence")
					continue
				}
				c.push(dto.RealtimeFrame{Type: dto.FrameTyping, Data: dto.TypingResponse{Conversation: c.options.Location.MetadataPath, Users: users}})
			case realtime.KindUploadProgress:
				c.push(dto.RealtimeFrame{Type: dto.FrameUploadProgress, Data: change.Payload})
			case realtime.KindConversationUpdated:
				if !c.options.Location.IsChat() {
					continue
				}
				select {
				case c.accessChanged <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (c *realtimeSession) reader() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		select {
		case <-c.closed:
			return
		default:
		}

		frame, err := c.service.decodeFrame(raw)
		if err != nil {
			c.push(dto.RealtimeFrame{Type: dto.FrameError, Data: dto.ErrorPayload{Message: err.Error()}})
			continue
		}
		c.handle(frame)
	}
}

func (c *realtimeSession) handle(frame dto.InboundFrame) {
	loc := c.options.Location
	userID := c.options.UserID

	switch frame.Type {
	case dto.InboundTyping:
		if !c.typing.Allow() {
			observability.TypingEvents().WithLabelValues("limited").Inc()
			return
		}
		if err := c.service.cfg.Typing.SetTyping(c.ctx, loc, userID, dto.TypingRequest{Typing: frame.Typing, At: frame.At}); err != nil {
			c.logger.Debug().Err(err).Msg("typing update failed")
		}

	case dto.InboundSend:
		message, err := c.service.cfg.Messages.SendText(c.ctx, loc, userID, dto.SendMessageRequest{
			Text:       frame.Text,
			SenderName: c.options.UserName,
			ReplyToID:  frame.ReplyToID,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to process realtime send")
			c.push(dto.RealtimeFrame{Type: dto.FrameError, Data: dto.ErrorPayload{ClientID: frame.ClientID, Message: err.Error()}})
			return
		}
		c.push(dto.RealtimeFrame{Type: dto.FrameAck, Data: dto.AckPayload{ClientID: frame.ClientID, Message: message}})

	case dto.InboundRead:
		if _, err := c.service.cfg.Messages.MarkRead(c.ctx, loc, frame.MessageID, userID); err != nil {
			c.push(dto.RealtimeFrame{Type: dto.FrameError, Data: dto.ErrorPayload{ClientID: frame.ClientID, Message: err.Error()}})
		}
	}
}

// decodeFrame validates raw against the inbound frame schema before decoding it.
func (s *realtimeService) decodeFrame(raw []byte) (dto.InboundFrame, error) {
	if len(raw) > realtimeMaxFrameBytes {
		return dto.InboundFrame{}, ErrInvalidFrame
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return dto.InboundFrame{}, ErrInvalidFrame
	}
	if err := s.schema.Validate(document); err != nil {
		return dto.InboundFrame{}, ErrInvalidFrame
	}

	var frame dto.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dto.InboundFrame{}, ErrInvalidFrame
	}
	return frame, nil
}

func (c *realtimeSession) push(frame dto.RealtimeFrame) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Str("frame", frame.Type).Msg("dropping realtime frame for slow client")
	}
}

func (c *realtimeSession) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case frame := <-c.snapshot:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case err := <-c.revoked:
			_ = c.conn.WriteJSON(dto.RealtimeFrame{Type: dto.FrameError, Data: dto.ErrorPayload{Message: err.Error()}})
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			return
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeSession) close() {
	c.once.Do(func() {
		close(c.closed)
		c.cancel()
		_ = c.conn.Close()
	})
}
