package session

import (
	"math/rand"
	"testing"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/protocol"
)

func ctl(key, value string) protocol.ControlMessage {
	m := protocol.ControlMessage{Payload: map[string]any{key: value}}
	switch key {
	case protocol.KeyType:
		m.Type = value
	case protocol.KeyStatus:
		m.Status = value
	}
	return m
}

// expected lists the message that advances each handshake phase.
var expected = []protocol.ControlMessage{
	ctl(protocol.KeyType, protocol.TypeSuccessfulConnection),
	ctl(protocol.KeyType, protocol.TypeSuccessfulAuthentication),
	ctl(protocol.KeyType, protocol.TypeProcessingRequest),
	ctl(protocol.KeyStatus, protocol.StatusStartedByteStream),
}

func TestSession_HappyPath(t *testing.T) {
	s := New("s1")
	if err := s.Connected(); err != nil {
		t.Fatal(err)
	}

	wantActions := []Action{ActionSendAuth, ActionSendRequests, ActionNone, ActionOpenSink}
	wantPhases := []Phase{AwaitAuth, AwaitProcessingAck, AwaitStreamStart, Streaming}
	for i, msg := range expected {
		action, err := s.Apply(msg)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if action != wantActions[i] {
			t.Errorf("step %d: action = %s, want %s", i, action, wantActions[i])
		}
		if s.Phase() != wantPhases[i] {
			t.Errorf("step %d: phase = %s, want %s", i, s.Phase(), wantPhases[i])
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != Terminal {
		t.Errorf("phase = %s, want terminal", s.Phase())
	}
}

func TestSession_MismatchMessages(t *testing.T) {
	tests := []struct {
		phase   Phase
		msg     protocol.ControlMessage
		message string
	}{
		{AwaitReady, ctl(protocol.KeyType, "error"), "connection not confirmed"},
		{AwaitAuth, ctl(protocol.KeyType, "unexpected"), "authentication failed"},
		{AwaitProcessingAck, ctl(protocol.KeyStatus, "queued"), "processing confirmation not received"},
		{AwaitStreamStart, ctl(protocol.KeyType, protocol.TypeFinishedByteStream), "byte stream start not received"},
	}
	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			s := New("s")
			s.Connected()
			for _, msg := range expected[:int(tt.phase)-int(AwaitReady)] {
				if _, err := s.Apply(msg); err != nil {
					t.Fatal(err)
				}
			}

			_, err := s.Apply(tt.msg)
			var he *ncerr.HandshakeError
			if !ncerr.As(err, &he) {
				t.Fatalf("expected HandshakeError, got %v", err)
			}
			if he.Message != tt.message || he.Phase != tt.phase.String() {
				t.Errorf("got %+v", he)
			}
			if s.Phase() != tt.phase {
				t.Errorf("phase advanced to %s", s.Phase())
			}
		})
	}
}

// For any message sequence the session advances one phase per match
// and stops for good at the first mismatch.
func TestSession_AdvanceOrAbortProperty(t *testing.T) {
	pool := append([]protocol.ControlMessage{
		ctl(protocol.KeyType, "unexpected"),
		ctl(protocol.KeyStatus, "weird"),
		{Payload: map[string]any{}},
	}, expected...)

	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		s := New("p")
		s.Connected()

		n := 1 + rng.Intn(8)
		aborted := false
		for i := 0; i < n && s.Phase() != Streaming; i++ {
			msg := pool[rng.Intn(len(pool))]
			before := s.Phase()
			want := expected[int(before)-int(AwaitReady)]
			matches := msg.Field(handshake[before].key) == want.Field(handshake[before].key)

			_, err := s.Apply(msg)
			switch {
			case aborted:
				if err == nil || s.Phase() != before {
					t.Fatalf("iter %d: session moved after abort", iter)
				}
			case matches:
				if err != nil || s.Phase() != before+1 {
					t.Fatalf("iter %d: matching %v in %s gave %v, phase %s", iter, msg, before, err, s.Phase())
				}
			default:
				if !ncerr.Is(err, ncerr.ErrHandshake) || s.Phase() != before {
					t.Fatalf("iter %d: mismatch in %s gave %v, phase %s", iter, before, err, s.Phase())
				}
				aborted = true
			}
		}
	}
}

func TestSession_AbortIsSticky(t *testing.T) {
	s := New("s")
	s.Connected()
	_, first := s.Apply(ctl(protocol.KeyType, "nope"))
	if first == nil {
		t.Fatal("expected abort")
	}
	_, again := s.Apply(expected[0])
	if again != first {
		t.Errorf("later Apply returned %v, want the original abort", again)
	}
	if err := s.Finish(); err != first {
		t.Errorf("Finish returned %v", err)
	}
	if s.Err() != first {
		t.Error("Err should report the abort")
	}
}

func TestSession_OutOfOrderCalls(t *testing.T) {
	s := New("s")
	if _, err := s.Apply(expected[0]); err == nil {
		t.Error("Apply before Connected should fail")
	}
	if err := s.Finish(); err == nil {
		t.Error("Finish before Streaming should fail")
	}
	s.Connected()
	if err := s.Connected(); err == nil {
		t.Error("second Connected should fail")
	}
	if err := s.Unexpected("binary frame"); !ncerr.Is(err, ncerr.ErrHandshake) {
		t.Errorf("Unexpected = %v", err)
	}
}

func TestPhase_String(t *testing.T) {
	if Phase(99).String() != "phase(99)" {
		t.Error("unknown phase formatting")
	}
	if AwaitProcessingAck.String() != "await-processing-ack" {
		t.Error("phase name")
	}
}
