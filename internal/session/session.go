// Package session drives the client side of a realtime TTS connection:
// a linear handshake expressed as one transition table, followed by a
// streaming phase in which control frames are interpreted and payload
// frames are appended to an output sink.
package session

import (
	"fmt"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/protocol"
)

// Phase is a point in the session lifecycle.  Phases only move forward.
type Phase int

const (
	Connecting Phase = iota
	AwaitReady
	AwaitAuth
	AwaitProcessingAck
	AwaitStreamStart
	Streaming
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case AwaitReady:
		return "await-ready"
	case AwaitAuth:
		return "await-auth"
	case AwaitProcessingAck:
		return "await-processing-ack"
	case AwaitStreamStart:
		return "await-stream-start"
	case Streaming:
		return "streaming"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Action is the side effect a matched handshake message asks for.
type Action int

const (
	ActionNone Action = iota
	ActionSendAuth
	ActionSendRequests
	ActionOpenSink
)

func (a Action) String() string {
	switch a {
	case ActionSendAuth:
		return "send-auth"
	case ActionSendRequests:
		return "send-requests"
	case ActionOpenSink:
		return "open-sink"
	default:
		return "none"
	}
}

// transition describes what a handshake phase waits for.
type transition struct {
	key     string // discriminator field inspected
	want    string // value that advances the phase
	next    Phase
	action  Action
	failure string // reported when anything else arrives
}

// handshake is the whole negotiation.  Phases absent from the table
// (Connecting, Streaming, Terminal) are not driven by control messages.
var handshake = map[Phase]transition{
	AwaitReady: {
		key: protocol.KeyType, want: protocol.TypeSuccessfulConnection,
		next: AwaitAuth, action: ActionSendAuth,
		failure: "connection not confirmed",
	},
	AwaitAuth: {
		key: protocol.KeyType, want: protocol.TypeSuccessfulAuthentication,
		next: AwaitProcessingAck, action: ActionSendRequests,
		failure: "authentication failed",
	},
	AwaitProcessingAck: {
		key: protocol.KeyType, want: protocol.TypeProcessingRequest,
		next: AwaitStreamStart, action: ActionNone,
		failure: "processing confirmation not received",
	},
	AwaitStreamStart: {
		key: protocol.KeyStatus, want: protocol.StatusStartedByteStream,
		next: Streaming, action: ActionOpenSink,
		failure: "byte stream start not received",
	},
}

// Session is the state of one handshake-to-termination interaction.
// It is not safe for concurrent use; one goroutine drives it.
type Session struct {
	ID string

	phase   Phase
	aborted error
}

// New returns a session in the Connecting phase.
func New(id string) *Session {
	return &Session{ID: id, phase: Connecting}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Err returns the error that aborted the session, if any.
func (s *Session) Err() error { return s.aborted }

// Connected records that the transport is open.
func (s *Session) Connected() error {
	if s.aborted != nil {
		return s.aborted
	}
	if s.phase != Connecting {
		return fmt.Errorf("session %s: connected in phase %s", s.ID, s.phase)
	}
	s.phase = AwaitReady
	return nil
}

// Apply feeds one handshake control message to the state machine.  A
// match advances exactly one phase and returns the action to perform.
// A mismatch aborts the session without advancing; every later call
// returns the same error.
func (s *Session) Apply(msg protocol.ControlMessage) (Action, error) {
	if s.aborted != nil {
		return ActionNone, s.aborted
	}
	t, ok := handshake[s.phase]
	if !ok {
		return ActionNone, fmt.Errorf("session %s: no handshake step in phase %s", s.ID, s.phase)
	}
	got := msg.Field(t.key)
	if got != t.want {
		return ActionNone, s.abort(t, got)
	}
	s.phase = t.next
	return t.action, nil
}

// Unexpected aborts the session because something other than a control
// message arrived during the handshake.
func (s *Session) Unexpected(what string) error {
	if s.aborted != nil {
		return s.aborted
	}
	t, ok := handshake[s.phase]
	if !ok {
		return fmt.Errorf("session %s: unexpected %s in phase %s", s.ID, what, s.phase)
	}
	return s.abort(t, what)
}

// Finish moves a streaming session to Terminal.
func (s *Session) Finish() error {
	if s.aborted != nil {
		return s.aborted
	}
	if s.phase != Streaming {
		return fmt.Errorf("session %s: finish in phase %s", s.ID, s.phase)
	}
	s.phase = Terminal
	return nil
}

func (s *Session) abort(t transition, got string) error {
	s.aborted = &ncerr.HandshakeError{
		Phase:   s.phase.String(),
		Key:     t.key,
		Want:    t.want,
		Got:     got,
		Message: t.failure,
	}
	return s.aborted
}
