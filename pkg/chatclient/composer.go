package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/noah-isme/groupchat-api/pkg/chatapi"
)

var (
	// ErrEmptyDraft is returned when there is nothing to send.
	ErrEmptyDraft = errors.New("draft is empty")
	// ErrSendInFlight is returned while a previous send has not finished.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrWindowClosed is returned when the last known send window is closed.
	ErrWindowClosed = errors.New("send window is closed")
)

// Sender posts text messages. *Client implements it.
type Sender interface {
	SendText(ctx context.Context, conv Conversation, req chatapi.SendMessageRequest) (chatapi.MessageView, error)
}

// Composer owns the draft and reply slot of one conversation. The text being
// sent is held apart from the draft, so a failed send puts it back.
type Composer struct {
	conv     Conversation
	sender   Sender
	notifier *Notifier
	typing   *TypingDebouncer

	mu      sync.Mutex
	draft   string
	pending string
	sending bool
	reply   *chatapi.MessageView
	window  *chatapi.WindowDecision
}

// NewComposer builds a composer. notifier and typing may be nil.
func NewComposer(conv Conversation, sender Sender, notifier *Notifier, typing *TypingDebouncer) *Composer {
	return &Composer{conv: conv, sender: sender, notifier: notifier, typing: typing}
}

// SetText replaces the draft, as on every keystroke.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()

	if c.typing != nil {
		c.typing.Keystroke(text)
	}
}

// Draft returns the current draft.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// ReplyTo puts message in the reply slot, replacing any earlier target.
func (c *Composer) ReplyTo(message chatapi.MessageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = &message
}

// CancelReply empties the reply slot.
func (c *Composer) CancelReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = nil
}

// ReplyTarget returns the message in the reply slot.
func (c *Composer) ReplyTarget() (chatapi.MessageView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply == nil {
		return chatapi.MessageView{}, false
	}
	return *c.reply, true
}

// UpdateWindow records the latest send-window decision, typically from a
// window frame. The server still enforces the window.
func (c *Composer) UpdateWindow(decision chatapi.WindowDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = &decision
}

// Send posts the draft. On success the reply slot is cleared; on failure the
// text returns to the draft, the reply slot is kept and a notice is shown.
func (c *Composer) Send(ctx context.Context) (chatapi.MessageView, error) {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return chatapi.MessageView{}, ErrSendInFlight
	}
	text := strings.TrimSpace(c.draft)
	if text == "" {
		c.mu.Unlock()
		return chatapi.MessageView{}, ErrEmptyDraft
	}
	if c.window != nil && !c.window.Allowed {
		reason := c.window.Reason
		c.mu.Unlock()
		c.notify(Notice{Message: reason, Severity: SeverityBlocking})
		return chatapi.MessageView{}, ErrWindowClosed
	}

	req := chatapi.SendMessageRequest{Text: text}
	if c.reply != nil {
		req.ReplyToID = c.reply.ID
	}
	c.pending = c.draft
	c.draft = ""
	c.sending = true
	c.mu.Unlock()

	if c.typing != nil {
		c.typing.Stop()
	}

	message, err := c.sender.SendText(ctx, c.conv, req)

	c.mu.Lock()
	c.sending = false
	if err != nil {
		if c.draft == "" {
			c.draft = c.pending
		} else {
			c.draft = c.pending + "\n" + c.draft
		}
		c.pending = ""
		c.mu.Unlock()
		c.notify(noticeFor(err))
		return chatapi.MessageView{}, err
	}
	c.pending = ""
	c.reply = nil
	c.mu.Unlock()
	return message, nil
}

func (c *Composer) notify(notice Notice) {
	if c.notifier != nil {
		c.notifier.Show(notice)
	}
}

func noticeFor(err error) Notice {
	if apiErr, ok := asAPIError(err); ok {
		if apiErr.IsPermission() {
			return Notice{Message: apiErr.Message, Severity: SeverityBlocking}
		}
		return Notice{Message: apiErr.Message, Severity: SeverityError}
	}
	return Notice{Message: "Failed to send message: " + err.Error(), Severity: SeverityError}
}
