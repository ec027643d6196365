package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/internal/sink"
	"voxrelay/util"
)

// FrameConn is the connection a Negotiator drives.
type FrameConn interface {
	FrameReader
	WriteJSON(ctx context.Context, v any) error
}

// Negotiator runs one session over an already-open connection: the
// handshake, the request submission and the streaming phase.
type Negotiator struct {
	Conn     FrameConn
	Auth     protocol.AuthRequest
	Requests []protocol.SynthesisRequest
	OpenSink sink.Opener

	// Streaming-phase behaviour.
	EndOfStream string
	SniffJSON   bool
	Progress    func()

	Logger  *util.Logger
	Metrics *metrics.Collector

	// NewID overrides session id generation.
	NewID func() string
}

// Result describes how far a session got.  It is returned on success
// and on failure.
type Result struct {
	SessionID string
	Phase     Phase
	Bytes     int64
	Sink      string
}

// Run drives the session to Terminal.  It returns a HandshakeError when
// the server deviates from the handshake, a transport error when the
// connection fails, and nil once the end-of-stream message arrives.
// The sink, once opened, is closed exactly once on every path.
func (n *Negotiator) Run(ctx context.Context) (res Result, err error) {
	id := uuid.NewString()
	if n.NewID != nil {
		id = n.NewID()
	}
	s := New(id)
	res.SessionID = id

	logger := n.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	logger = logger.Named(shortID(id))

	n.Metrics.SessionOpened()
	defer n.Metrics.SessionClosed()

	var out sink.Sink
	defer func() {
		res.Phase = s.Phase()
		if out == nil {
			return
		}
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	if err := n.validate(); err != nil {
		return res, err
	}
	if n.Conn == nil {
		return res, ncerr.ErrNotConnected
	}
	if err := s.Connected(); err != nil {
		return res, err
	}
	logger.Debug("phase %s", s.Phase())

	for s.Phase() != Streaming {
		f, err := n.Conn.ReadFrame(ctx)
		if err != nil {
			return res, err
		}
		if f.Kind != protocol.Control && !(n.SniffJSON && protocol.LooksLikeJSON(f.Data)) {
			err := s.Unexpected(fmt.Sprintf("binary frame (%d bytes)", len(f.Data)))
			n.Metrics.HandshakeFailed()
			return res, err
		}
		msg, err := protocol.ParseControl(f.Data)
		if err != nil {
			return res, fmt.Errorf("%s: %w", s.Phase(), err)
		}
		logger.Verbose("received %s", msg)

		action, err := s.Apply(msg)
		if err != nil {
			n.Metrics.HandshakeFailed()
			return res, err
		}
		logger.Debug("phase %s", s.Phase())

		switch action {
		case ActionSendAuth:
			if err := n.Conn.WriteJSON(ctx, n.Auth); err != nil {
				return res, err
			}
		case ActionSendRequests:
			for i, req := range n.Requests {
				if err := n.Conn.WriteJSON(ctx, req); err != nil {
					return res, err
				}
				logger.Verbose("sent request %d/%d (%d chars)", i+1, len(n.Requests), len([]rune(req.Query)))
			}
		case ActionOpenSink:
			out, err = n.OpenSink(id)
			if err != nil {
				return res, fmt.Errorf("open sink: %w", err)
			}
			res.Sink = out.Name()
			logger.Verbose("streaming into %s", out.Name())
		}
	}

	c := Classifier{
		EndOfStream: n.EndOfStream,
		SniffJSON:   n.SniffJSON,
		Logger:      logger,
		Metrics:     n.Metrics,
		Progress:    n.Progress,
	}
	res.Bytes, err = c.Consume(ctx, n.Conn, out)
	if err != nil {
		return res, err
	}

	closeErr := out.Close()
	out = nil
	if closeErr != nil {
		return res, fmt.Errorf("close sink: %w", closeErr)
	}
	if err := s.Finish(); err != nil {
		return res, err
	}
	logger.Verbose("session complete, %d bytes", res.Bytes)
	return res, nil
}

func (n *Negotiator) validate() error {
	if len(n.Requests) == 0 {
		return ncerr.Missing("query")
	}
	for _, req := range n.Requests {
		if err := req.Validate(); err != nil {
			return err
		}
	}
	if n.OpenSink == nil {
		return fmt.Errorf("session: no sink opener configured")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
