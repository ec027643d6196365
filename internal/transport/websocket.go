package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/protocol"
)

// Default websocket constants.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultReadLimit        = 16 * 1024 * 1024 // 16MB
	DefaultCloseGracePeriod = time.Second
)

// ── Conn ─────────────────────────────────────────────────────────────

// Conn is an ordered, full-duplex websocket connection that delivers
// discrete frames tagged as text (control) or binary (payload).
//
// Reads must come from a single goroutine.  Writes are serialised
// internally and may come from any goroutine.
type Conn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex // serializes writes (gorilla/websocket requirement)
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established gorilla connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, writeWait: DefaultWriteWait}
}

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// ReadFrame blocks until the next unit arrives.  There is no read
// timeout: an idle peer suspends the caller until ctx is cancelled,
// which aborts the read by expiring the socket deadline.
func (c *Conn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Frame{}, ctxErr
		}
		return protocol.Frame{}, ncerr.Wrap("read", c.RemoteAddr(), err)
	}

	switch mt {
	case websocket.TextMessage:
		return protocol.Frame{Kind: protocol.Control, Data: data}, nil
	case websocket.BinaryMessage:
		return protocol.Frame{Kind: protocol.Payload, Data: data}, nil
	default:
		return protocol.Frame{}, ncerr.Wrap("read", c.RemoteAddr(),
			fmt.Errorf("unexpected websocket message type %d", mt))
	}
}

// WriteText sends one text frame.
func (c *Conn) WriteText(ctx context.Context, text string) error {
	return c.write(ctx, websocket.TextMessage, []byte(text))
}

// WriteBinary sends one binary frame.
func (c *Conn) WriteBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.BinaryMessage, data)
}

// WriteJSON encodes v and sends it as one text frame.
func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.write(ctx, websocket.TextMessage, data)
}

func (c *Conn) write(ctx context.Context, mt int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return ncerr.Wrap("write", c.RemoteAddr(), err)
	}
	if err := c.ws.WriteMessage(mt, data); err != nil {
		return ncerr.Wrap("write", c.RemoteAddr(), err)
	}
	return nil
}

// Close sends a best-effort normal-closure frame and closes the socket.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultCloseGracePeriod))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// ── Dialing ──────────────────────────────────────────────────────────

// WSDialer opens websocket connections.  The TCP leg is delegated to
// Net, which makes SSH-tunnelled websockets possible.
type WSDialer struct {
	Net              Dialer // nil means a plain TCPDialer
	HandshakeTimeout time.Duration
	Header           http.Header
	ReadLimit        int64
}

// Dial performs the websocket handshake with url.
func (d *WSDialer) Dial(ctx context.Context, url string) (*Conn, error) {
	netDialer := d.Net
	if netDialer == nil {
		netDialer = &TCPDialer{}
	}
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = DefaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return netDialer.Dial(ctx, network, addr)
		},
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return nil, ncerr.Wrap("dial", url, err)
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)
	return NewConn(ws), nil
}

// Close releases the underlying net dialer.
func (d *WSDialer) Close() error {
	if d.Net == nil {
		return nil
	}
	return d.Net.Close()
}

// ── Accepting ────────────────────────────────────────────────────────

// upgrader accepts any origin; cross-origin policy belongs to whatever
// fronts the relay.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Upgrade completes the server side of a websocket handshake.  On
// failure the upgrader has already replied with an HTTP error.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, ncerr.Wrap("upgrade", r.RemoteAddr, err)
	}
	ws.SetReadLimit(DefaultReadLimit)
	return NewConn(ws), nil
}
