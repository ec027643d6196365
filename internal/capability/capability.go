// Package capability defines what happens over an accepted relay
// connection.  A Capability operates on a frame connection rather than
// a concrete websocket, which keeps it testable and decoupled from
// transport details.
package capability

import (
	"context"

	"voxrelay/internal/protocol"
)

// Conn is the accepted connection a Capability drives.  Reads come
// from one goroutine; writes are serialised by the implementation.
type Conn interface {
	ReadFrame(ctx context.Context) (protocol.Frame, error)
	WriteText(ctx context.Context, text string) error
}

// Capability handles a single connection according to a specific
// behaviour.
type Capability interface {
	// Handle runs the capability against conn.  It blocks until the
	// peer goes away or the context is cancelled.
	Handle(ctx context.Context, conn Conn) error
}
