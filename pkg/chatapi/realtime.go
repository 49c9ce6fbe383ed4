package chatapi

// Realtime frame types pushed to websocket clients.
const (
	FrameSnapshot       = "snapshot"
	FrameTyping         = "typing"
	FrameWindow         = "window"
	FrameUploadProgress = "upload_progress"
	FrameAck            = "ack"
	FrameError          = "error"
)

// Inbound frame types accepted from websocket clients.
const (
	InboundTyping = "typing"
	InboundSend   = "send"
	InboundRead   = "read"
)

// RealtimeFrame is the envelope for every server to client websocket message.
type RealtimeFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InboundFrame is a client to server websocket message.
type InboundFrame struct {
	Type      string `json:"type"`
	Typing    bool   `json:"typing,omitempty"`
	At        int64  `json:"at,omitempty"`
	Text      string `json:"text,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

// AckPayload confirms an inbound send.
type AckPayload struct {
	ClientID string      `json:"client_id,omitempty"`
	Message  MessageView `json:"message"`
}

// ErrorPayload reports a failed inbound frame.
type ErrorPayload struct {
	ClientID string `json:"client_id,omitempty"`
	Message  string `json:"message"`
}
