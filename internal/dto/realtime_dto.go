package dto

import "github.com/noah-isme/groupchat-api/pkg/chatapi"

// Realtime frame types pushed to websocket clients.
const (
	FrameSnapshot       = chatapi.FrameSnapshot
	FrameTyping         = chatapi.FrameTyping
	FrameWindow         = chatapi.FrameWindow
	FrameUploadProgress = chatapi.FrameUploadProgress
	FrameAck            = chatapi.FrameAck
	FrameError          = chatapi.FrameError
)

// Inbound frame types accepted from websocket clients.
const (
	InboundTyping = chatapi.InboundTyping
	InboundSend   = chatapi.InboundSend
	InboundRead   = chatapi.InboundRead
)

type (
	// RealtimeFrame is the envelope for every server to client websocket message.
	RealtimeFrame = chatapi.RealtimeFrame
	// InboundFrame is a client to server websocket message.
	InboundFrame = chatapi.InboundFrame
	// AckPayload confirms an inbound send.
	AckPayload = chatapi.AckPayload
	// ErrorPayload reports a failed inbound frame.
	ErrorPayload = chatapi.ErrorPayload
)
