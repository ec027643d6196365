// Package protocol defines the wire shapes exchanged over a voxrelay
// connection: JSON control messages keyed by a discriminator field,
// opaque binary payload frames, the TTS authentication and synthesis
// requests, and the relay's chat request and text sentinels.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	ncerr "voxrelay/internal/errors"
)

// Discriminator keys.
const (
	KeyType   = "type"
	KeyStatus = "status"
)

// Discriminator values sent by a realtime TTS server.
const (
	TypeSuccessfulConnection     = "successful-connection"
	TypeSuccessfulAuthentication = "successful-authentication"
	TypeProcessingRequest        = "processing-request"
	StatusStartedByteStream      = "started-byte-stream"
	TypeFinishedByteStream       = "finished-byte-stream"
)

// Relay text sentinels.
const (
	SentinelDone = "[DONE]"
	errorPrefix  = "[ERROR] "
)

// ErrorFrame formats a diagnostic frame for a relay consumer.
func ErrorFrame(msg string) string { return errorPrefix + msg }

// IsErrorFrame reports whether a relay text frame is a diagnostic.
func IsErrorFrame(s string) bool { return strings.HasPrefix(s, errorPrefix) }

// ── Frames ───────────────────────────────────────────────────────────

// FrameKind tags an inbound unit as structured control or opaque payload.
type FrameKind int

const (
	// Control frames are text frames carrying JSON.
	Control FrameKind = iota
	// Payload frames are binary frames written through verbatim.
	Payload
)

func (k FrameKind) String() string {
	switch k {
	case Control:
		return "control"
	case Payload:
		return "payload"
	default:
		return "unknown"
	}
}

// Frame is one discrete unit delivered by the transport.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// LooksLikeJSON reports whether a binary unit is a JSON object that a
// server sent in a binary frame.  Audio never starts with '{' and ends
// with '}' after trimming, so the check is cheap and conservative.
func LooksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return false
	}
	return json.Valid(trimmed)
}

// ── Control messages ─────────────────────────────────────────────────

// ControlMessage is a decoded control unit.  Payload holds every field
// of the JSON object, including the discriminators.
type ControlMessage struct {
	Type    string
	Status  string
	Payload map[string]any
}

// ParseControl decodes a control unit.  The unit must be a JSON object.
func ParseControl(data []byte) (ControlMessage, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ControlMessage{}, fmt.Errorf("parse control message: %w", err)
	}
	if payload == nil {
		return ControlMessage{}, fmt.Errorf("parse control message: not a JSON object")
	}
	msg := ControlMessage{Payload: payload}
	msg.Type, _ = payload[KeyType].(string)
	msg.Status, _ = payload[KeyStatus].(string)
	return msg, nil
}

// Field returns the string value stored under key, or "" when the key
// is absent or not a string.
func (m ControlMessage) Field(key string) string {
	switch key {
	case KeyType:
		return m.Type
	case KeyStatus:
		return m.Status
	}
	s, _ := m.Payload[key].(string)
	return s
}

func (m ControlMessage) String() string {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Sprintf("%v", m.Payload)
	}
	return string(data)
}

// ── TTS client requests ──────────────────────────────────────────────

// AuthRequest is sent after the server confirms the connection.
type AuthRequest struct {
	Token    string `json:"token"`
	Strategy string `json:"strategy"`
}

// SynthesisRequest asks the server to synthesise one piece of text.
type SynthesisRequest struct {
	Query         string  `json:"query"`
	Normalization string  `json:"normalization"`
	Language      string  `json:"language"`
	AudioFormat   string  `json:"audio_format"`
	AudioQuality  float64 `json:"audio_quality"`
	AudioSpeed    string  `json:"audio_speed"`
	SpeakerID     string  `json:"speaker_id"`
}

// Validate rejects requests the server could not act on.
func (r SynthesisRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ncerr.Missing("query")
	}
	return nil
}

// ── Relay requests ───────────────────────────────────────────────────

// ChatRequest is the relay's inbound configuration payload.  APIKey is
// forwarded to the generator for this request only.
type ChatRequest struct {
	APIKey string `json:"api_key"`
	Prompt string `json:"prompt"`
	Text   string `json:"text"`
}

// ParseChatRequest decodes and validates a relay request.  Each field
// must be present with a string value; empty strings are accepted.
func ParseChatRequest(data []byte) (ChatRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ChatRequest{}, &ncerr.RequestError{Message: "invalid JSON", Err: err}
	}
	if raw == nil {
		return ChatRequest{}, &ncerr.RequestError{Message: "payload must be a JSON object"}
	}

	var req ChatRequest
	fields := []struct {
		name string
		dst  *string
	}{
		{"api_key", &req.APIKey},
		{"prompt", &req.Prompt},
		{"text", &req.Text},
	}
	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok {
			return ChatRequest{}, ncerr.Missing(f.name)
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return ChatRequest{}, &ncerr.RequestError{Field: f.name, Message: "must be a string"}
		}
	}
	return req, nil
}
