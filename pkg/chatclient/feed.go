package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

// ErrNotConnected is returned by Subscription.Send between connections.
var ErrNotConnected = errors.New("feed is not connected")

// Frame is a server frame with its payload left raw until asked for.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Snapshot decodes a snapshot frame.
func (f Frame) Snapshot() (chatapi.FeedSnapshot, error) {
	var snapshot chatapi.FeedSnapshot
	err := json.Unmarshal(f.Data, &snapshot)
	return snapshot, err
}

// Typing decodes a typing frame.
func (f Frame) Typing() (chatapi.TypingResponse, error) {
	var typing chatapi.TypingResponse
	err := json.Unmarshal(f.Data, &typing)
	return typing, err
}

// Window decodes a window frame.
func (f Frame) Window() (chatapi.WindowResponse, error) {
	var window chatapi.WindowResponse
	err := json.Unmarshal(f.Data, &window)
	return window, err
}

// Ack decodes an ack frame.
func (f Frame) Ack() (chatapi.AckPayload, error) {
	var ack chatapi.AckPayload
	err := json.Unmarshal(f.Data, &ack)
	return ack, err
}

// Failure decodes an error frame.
func (f Frame) Failure() (chatapi.ErrorPayload, error) {
	var payload chatapi.ErrorPayload
	err := json.Unmarshal(f.Data, &payload)
	return payload, err
}

// FrameHandler receives frames in arrival order on the subscription goroutine.
type FrameHandler func(Frame)

// Subscription is a live feed that reconnects with exponential backoff until
// closed or refused by the server.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
	err  error

	writeMu sync.Mutex
}

// Subscribe opens the conversation feed. Snapshot frames are total, so a
// reconnect only needs to wait for the next one.
func (c *Client) Subscribe(ctx context.Context, conv Conversation, handle FrameHandler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go sub.run(ctx, c, conv, handle)
	return sub
}

// Close stops the subscription and waits for it to end.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended: nil after Close, an *APIError when
// the server refused the feed, or the last connection error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send writes an inbound frame on the current connection.
func (s *Subscription) Send(frame chatapi.InboundFrame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (s *Subscription) run(ctx context.Context, c *Client, conv Conversation, handle FrameHandler) {
	defer close(s.done)

	policy := backoff.NewExponentialBackOff()
	if c.cfg.ReconnectInitial > 0 {
		policy.InitialInterval = c.cfg.ReconnectInitial
	}
	if c.cfg.ReconnectMax > 0 {
		policy.MaxInterval = c.cfg.ReconnectMax
	}
	policy.MaxElapsedTime = c.cfg.ReconnectMaxElapsed
	retry := backoff.WithContext(policy, ctx)

	err := backoff.RetryNotify(func() error {
		connected, err := s.session(ctx, c, conv, handle)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if connected {
			retry.Reset()
		}
		return err
	}, retry, func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Str("group_id", conv.GroupID).Msg("feed disconnected")
	})

	if ctx.Err() != nil {
		err = nil
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// session runs one connection. connected reports whether the handshake
// succeeded, which resets the backoff.
func (s *Subscription) session(ctx context.Context, c *Client, conv Conversation, handle FrameHandler) (bool, error) {
	target, err := c.websocketURL(conv)
	if err != nil {
		return false, backoff.Permanent(err)
	}

	header := http.Header{}
	c.authorize(header)

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			apiErr := handshakeError(resp)
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return false, backoff.Permanent(apiErr)
			}
			return false, apiErr
		}
		return false, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return true, err
		}
		if handle != nil {
			handle(frame)
		}
	}
}

func handshakeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if resp.Body == nil {
		return apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
