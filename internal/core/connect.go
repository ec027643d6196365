package core

import (
	"context"
	"fmt"

	"voxrelay/internal/session"
	"voxrelay/internal/transport"
	"voxrelay/util"
)

// ConnectMode dials a realtime TTS endpoint and runs one negotiated
// session on it, the default client mode.
type ConnectMode struct {
	Dialer     *transport.WSDialer
	URL        string
	Negotiator session.Negotiator // Conn is filled in by Run
	Logger     *util.Logger

	// Result holds the outcome of the last Run.
	Result session.Result
}

// Run dials the endpoint and drives the session to completion.  The
// connection and the dialer are closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s", m.URL)

	conn, err := m.Dialer.Dial(ctx, m.URL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.URL, err)
	}
	defer conn.Close()

	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	neg := m.Negotiator
	neg.Conn = conn
	res, err := neg.Run(ctx)
	m.Result = res
	if err != nil {
		if res.Sink != "" {
			m.Logger.Warn("partial audio (%d bytes) left in %s", res.Bytes, res.Sink)
		}
		return fmt.Errorf("session %s: %w", res.SessionID, err)
	}

	m.Logger.Info("audio saved to %s (%d bytes)", res.Sink, res.Bytes)
	return nil
}
