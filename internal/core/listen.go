package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"voxrelay/internal/capability"
	"voxrelay/internal/metrics"
	"voxrelay/internal/transport"
	"voxrelay/util"
)

// ListenMode serves the chat relay over websockets.  Every accepted
// connection runs the capability in its own goroutine; connections do
// not share state.
type ListenMode struct {
	Address     string // ":port"
	Path        string // websocket route
	MetricsPath string // Prometheus route, empty to disable
	GracePeriod time.Duration
	Capability  capability.Capability
	Metrics     *metrics.Collector
	Logger      *util.Logger

	// Listener overrides Address when set.
	Listener net.Listener
}

// Handler returns the HTTP routes of the relay.
func (m *ListenMode) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(m.Path, func(w http.ResponseWriter, r *http.Request) {
		m.serveConn(ctx, w, r)
	})
	if m.MetricsPath != "" {
		mux.Handle(m.MetricsPath, metrics.Handler(m.Metrics))
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts the server down.
func (m *ListenMode) Run(ctx context.Context) error {
	ln := m.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", m.Address)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", m.Address, err)
		}
	}

	srv := &http.Server{
		Handler:           m.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	m.Logger.Info("relay listening on %s%s", ln.Addr(), m.Path)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grace := m.GracePeriod
		if grace <= 0 {
			grace = time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		m.Logger.Verbose("shutting down relay")
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// serveConn upgrades one request and hands the connection to the
// capability.  ctx is the server's context, so stopping the server
// also aborts hijacked websocket connections.
func (m *ListenMode) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logger := m.Logger.Named(uuid.NewString()[:8])

	conn, err := transport.Upgrade(w, r)
	if err != nil {
		logger.Warn("%v", err)
		return
	}
	defer conn.Close()

	logger.Verbose("connection from %s", conn.RemoteAddr())
	if err := m.Capability.Handle(ctx, conn); err != nil {
		m.Metrics.RecordError(err.Error())
		logger.Warn("connection ended: %v", err)
		return
	}
	logger.Verbose("connection closed")
}
