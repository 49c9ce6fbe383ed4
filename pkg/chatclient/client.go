// Package chatclient is a Go client for the group chat API. Besides thin REST
// wrappers it carries the client-side state machine: a reconnecting feed
// subscription, a composer with a reply slot, a typing debouncer and a
// single-slot notifier.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

const apiPrefix = "/api/v1"

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zerolog.Logger

	// ReconnectInitial and ReconnectMax bound the feed reconnect backoff.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// ReconnectMaxElapsed stops reconnecting after this long without a
	// successful connection. Zero retries until the context ends.
	ReconnectMaxElapsed time.Duration
}

// Client talks to one API deployment on behalf of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  websocket.Dialer
	logger  zerolog.Logger
	cfg     Config
}

// APIError is a non-success response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsPermission reports whether the server refused the caller, including a
// closed send window.
func (e *APIError) IsPermission() bool {
	return e.Status == http.StatusForbidden || e.Status == http.StatusUnauthorized
}

// Conversation addresses a group conversation, or an inner-group chat when
// InnerGroupID is set.
type Conversation struct {
	GroupID      string
	InnerGroupID string
}

func (c Conversation) path() string {
	p := "/groups/" + url.PathEscape(c.GroupID)
	if c.InnerGroupID != "" {
		p += "/inner-groups/" + url.PathEscape(c.InnerGroupID)
	}
	return p
}

// New constructs a client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.With().Str("component", "chatclient").Logger(),
		cfg:     cfg,
	}
}

// JoinByInviteCode joins the group owning code.
func (c *Client) JoinByInviteCode(ctx context.Context, code string) (chatapi.GroupResponse, error) {
	var group chatapi.GroupResponse
	err := c.do(ctx, http.MethodPost, "/groups/join", chatapi.JoinGroupRequest{InviteCode: code}, &group)
	return group, err
}

// SendText posts a text message.
func (c *Client) SendText(ctx context.Context, conv Conversation, req chatapi.SendMessageRequest) (chatapi.MessageView, error) {
	var message chatapi.MessageView
	err := c.do(ctx, http.MethodPost, conv.path()+"/messages", req, &message)
	return message, err
}

// History loads up to limit messages in the conversation's display order.
func (c *Client) History(ctx context.Context, conv Conversation, limit int) ([]chatapi.MessageView, error) {
	path := conv.path() + "/messages"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var messages []chatapi.MessageView
	err := c.do(ctx, http.MethodGet, path, nil, &messages)
	return messages, err
}

// SetStar stars or unstars a message for the caller.
func (c *Client) SetStar(ctx context.Context, conv Conversation, messageID string, starred bool) (chatapi.MessageView, error) {
	method := http.MethodPut
	if !starred {
		method = http.MethodDelete
	}
	var message chatapi.MessageView
	err := c.do(ctx, method, conv.path()+"/messages/"+url.PathEscape(messageID)+"/star", nil, &message)
	return message, err
}

// SetPinned pins or unpins a message.
func (c *Client) SetPinned(ctx context.Context, conv Conversation, messageID string, pinned bool) (chatapi.MessageView, error) {
	method := http.MethodPut
	if !pinned {
		method = http.MethodDelete
	}
	var message chatapi.MessageView
	err := c.do(ctx, method, conv.path()+"/messages/"+url.PathEscape(messageID)+"/pin", nil, &message)
	return message, err
}

// Delete removes a message. Callers confirm with the user before calling.
func (c *Client) Delete(ctx context.Context, conv Conversation, messageID string) error {
	return c.do(ctx, http.MethodDelete, conv.path()+"/messages/"+url.PathEscape(messageID)+"?confirm=true", nil, nil)
}

// Window fetches the current send-window decision.
func (c *Client) Window(ctx context.Context, conv Conversation) (chatapi.WindowResponse, error) {
	var window chatapi.WindowResponse
	err := c.do(ctx, http.MethodGet, conv.path()+"/window", nil, &window)
	return window, err
}

// Metadata fetches the conversation's last-message preview and participants.
func (c *Client) Metadata(ctx context.Context, conv Conversation) (chatapi.ConversationResponse, error) {
	var meta chatapi.ConversationResponse
	err := c.do(ctx, http.MethodGet, conv.path()+"/conversation", nil, &meta)
	return meta, err
}

// ListMine lists the caller's groups with their conversation previews.
func (c *Client) ListMine(ctx context.Context) ([]chatapi.GroupResponse, error) {
	var groups []chatapi.GroupResponse
	err := c.do(ctx, http.MethodGet, "/groups/mine", nil, &groups)
	return groups, err
}

// SetTyping publishes the caller's typing flag.
func (c *Client) SetTyping(ctx context.Context, conv Conversation, typing bool) error {
	req := chatapi.TypingRequest{Typing: typing, At: time.Now().UnixMilli()}
	return c.do(ctx, http.MethodPost, conv.path()+"/typing", req, nil)
}

// TypingPublisher adapts SetTyping for a TypingDebouncer. Failures are logged;
// typing state is cosmetic.
func (c *Client) TypingPublisher(ctx context.Context, conv Conversation) func(bool) {
	return func(typing bool) {
		if err := c.SetTyping(ctx, conv, typing); err != nil {
			c.logger.Debug().Err(err).Bool("typing", typing).Msg("typing publish failed")
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices || !envelope.Success {
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) authorize(header http.Header) {
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) websocketURL(conv Conversation) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + apiPrefix + conv.path() + "/ws"
	return parsed.String(), nil
}

// asAPIError unwraps err into an APIError, if it is one.
func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
