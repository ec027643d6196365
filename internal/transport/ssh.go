package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"voxrelay/tunnel"
	"voxrelay/util"
)

// SSHDialer carries the websocket's TCP leg over an SSH gateway.  The
// gateway session is opened on the first Dial and reopened when it has
// dropped since the previous one.
type SSHDialer struct {
	tunnel  tunnel.Tunnel
	gateway string // user@host:port, for logs
	logger  *util.Logger

	mu   sync.Mutex
	open bool
}

// NewSSHDialer returns a dialer for the gateway described by cfg.
// Nothing is dialled until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel:  tunnel.NewSSHTunnel(cfg, logger),
		gateway: cfg.User + "@" + util.FormatAddr(cfg.Host, cfg.Port),
		logger:  logger,
	}
}

// ensure opens the gateway session unless a live one exists.
func (d *SSHDialer) ensure(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open && d.tunnel.IsAlive() {
		return nil
	}
	if d.open {
		d.logger.Warn("SSH gateway %s dropped, reconnecting", d.gateway)
		_ = d.tunnel.Close()
		d.open = false
	}

	d.logger.Verbose("opening SSH gateway %s", d.gateway)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.open = true
	return nil
}

// Dial opens a forwarded connection to address on the far side of the
// gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.ensure(ctx); err != nil {
		return nil, err
	}
	d.logger.Debug("forwarding %s via %s", address, d.gateway)
	return d.tunnel.Dial(ctx, network, address)
}

// Close ends the gateway session, if one was opened.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	return d.tunnel.Close()
}
