package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/protocol"
)

// echoServer returns a test server that upgrades with Upgrade and echoes
// every frame back with its original message type.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		ctx := context.Background()
		for {
			f, err := conn.ReadFrame(ctx)
			if err != nil {
				return
			}
			if f.Kind == protocol.Payload {
				err = conn.WriteBinary(ctx, f.Data)
			} else {
				err = conn.WriteText(ctx, string(f.Data))
			}
			if err != nil {
				return
			}
		}
	}))
}

// silentServer accepts the handshake and never sends anything.
func silentServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, err := conn.ReadFrame(context.Background()); err != nil {
				return
			}
		}
	}))
}

// wsURL converts an HTTP test server URL to a WebSocket URL.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_TextAndBinaryFrames(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	d := &WSDialer{HandshakeTimeout: 2 * time.Second}
	ctx := context.Background()
	conn, err := d.Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ctx, map[string]string{"type": "ping"}))
	require.NoError(t, conn.WriteBinary(ctx, []byte{0x01, 0x02}))

	f, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Control, f.Kind)
	assert.JSONEq(t, `{"type":"ping"}`, string(f.Data))

	f, err = conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Payload, f.Kind)
	assert.Equal(t, []byte{0x01, 0x02}, f.Data)
}

func TestConn_ReadCancelledByContext(t *testing.T) {
	srv := silentServer(t)
	defer srv.Close()

	d := &WSDialer{}
	conn, err := d.Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = conn.ReadFrame(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConn_ReadAfterPeerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	conn, err := (&WSDialer{}).Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadFrame(context.Background())
	require.Error(t, err)
	assert.True(t, ncerr.IsTransport(err), "peer close should surface as a transport failure: %v", err)
	assert.True(t, websocket.IsCloseError(ncerr.Unwrap(err), websocket.CloseNormalClosure))
}

func TestConn_CloseIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn, err := (&WSDialer{}).Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)

	first := conn.Close()
	assert.Equal(t, first, conn.Close())
}

func TestWSDialer_Failure(t *testing.T) {
	d := &WSDialer{HandshakeTimeout: 500 * time.Millisecond}
	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.True(t, ncerr.IsTransport(err))
}

func TestWSDialer_NotWebsocket(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := (&WSDialer{}).Dial(context.Background(), wsURL(srv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}
