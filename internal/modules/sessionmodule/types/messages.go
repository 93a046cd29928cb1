// Package types provides the wire and state types for the session module.
package types

import (
	"encoding/json"
	"errors"
	"time"

	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
)

// MessageType discriminates inbound and outbound session messages
type MessageType string

// Inbound message types
const (
	MessageAuth          MessageType = "auth"
	MessageFrame         MessageType = "frame"
	MessageAudio         MessageType = "audio"
	MessageVideoChunk    MessageType = "video_chunk"
	MessageVideoComplete MessageType = "video_complete"
	MessageStop          MessageType = "stop"
	MessagePing          MessageType = "ping"
)

// Outbound message types
const (
	MessageAuthSuccess       MessageType = "auth_success"
	MessageStatus            MessageType = "status"
	MessageAIFeedback        MessageType = "ai_feedback"
	MessageUploadComplete    MessageType = "upload_complete"
	MessageUploadError       MessageType = "upload_error"
	MessageFeedbackSaved     MessageType = "feedback_saved"
	MessageFeedbackSaveError MessageType = "feedback_save_error"
	MessagePong              MessageType = "pong"
)

// Inbound is a message received from the client. Media payloads are
// base64, optionally prefixed with a data URL header.
type Inbound struct {
	Type      MessageType `json:"type"`
	Data      string      `json:"data,omitempty"`
	Frame     string      `json:"frame,omitempty"`
	Audio     string      `json:"audio,omitempty"`
	Video     string      `json:"video,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	OwnerID   string      `json:"owner_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

// Payload returns the base64 body regardless of which field the client used.
func (m Inbound) Payload() string {
	for _, s := range []string{m.Data, m.Frame, m.Audio, m.Video} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Owner returns the owner id carried by an auth message.
func (m Inbound) Owner() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.OwnerID
}

var errNoType = errors.New("message has no type")

// ParseInbound decodes a raw text frame. Failures are protocol errors.
func ParseInbound(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, sErrors.ProtocolError("parse_message", err)
	}
	if msg.Type == "" {
		return Inbound{}, sErrors.ProtocolError("parse_message", errNoType)
	}
	return msg, nil
}

// SegmentRef locates an actionable judgment on the session timeline.
type SegmentRef struct {
	Index        int     `json:"index"`
	StartSeconds float64 `json:"start"`
	EndSeconds   float64 `json:"end"`
}

// Outbound is a message sent to the client. Only the fields relevant to
// Type are populated.
type Outbound struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id,omitempty"`
	UserID          string      `json:"user_id,omitempty"`
	Message         string      `json:"message,omitempty"`
	FramesProcessed int         `json:"frames_processed,omitempty"`
	ChunksReceived  int         `json:"chunks_received,omitempty"`
	Feedback        string      `json:"feedback,omitempty"`
	Actionable      bool        `json:"actionable,omitempty"`
	Segment         *SegmentRef `json:"segment,omitempty"`
	URL             string      `json:"url,omitempty"`
	Strategy        string      `json:"strategy,omitempty"`
	Muxed           bool        `json:"muxed,omitempty"`
	Count           *int        `json:"count,omitempty"`
	Error           string      `json:"error,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Counted returns n as an Outbound count, so a zero count is still sent.
func Counted(n int) *int { return &n }
