// Package transport provides the connection layer under a voxrelay
// session: net-level dialers (direct TCP or through an SSH gateway) and
// a websocket frame connection that delivers discrete text-or-binary
// units in order.  What happens over the connection is the session and
// capability layers' job.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound TCP connections for the websocket handshake.
// Implementations include a plain TCP dialer and an SSH-tunnelled
// dialer that routes traffic through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
