package core

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"voxrelay/config"
	"voxrelay/internal/capability"
	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/internal/segment"
	"voxrelay/internal/session"
	"voxrelay/internal/sink"
	"voxrelay/internal/transport"
	"voxrelay/internal/upstream"
	"voxrelay/tunnel"
	"voxrelay/util"
)

// Build constructs the appropriate Mode from the given configuration.
// The configuration must already be validated.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger, m)
	}
	return buildConnect(cfg, logger, m)
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	url, err := util.WebSocketURL(cfg.URL, "")
	if err != nil {
		return nil, err
	}

	requests := make([]protocol.SynthesisRequest, 0, len(cfg.Texts))
	for _, text := range cfg.Texts {
		requests = append(requests, protocol.SynthesisRequest{
			Query:         text,
			Normalization: cfg.Normalization,
			Language:      cfg.Language,
			AudioFormat:   cfg.AudioFormat,
			AudioQuality:  cfg.AudioQuality,
			AudioSpeed:    cfg.AudioSpeed,
			SpeakerID:     cfg.SpeakerID,
		})
	}

	neg := session.Negotiator{
		Auth:        protocol.AuthRequest{Token: cfg.Token, Strategy: cfg.Strategy},
		Requests:    requests,
		OpenSink:    sink.FileOpener(cfg.OutputDir, cfg.AudioFormat),
		EndOfStream: cfg.EndOfStream,
		SniffJSON:   cfg.SniffJSON,
		Logger:      logger,
		Metrics:     m,
	}
	// Progress dots only make sense on a terminal.
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		neg.Progress = func() {}
	}

	return &ConnectMode{
		Dialer: &transport.WSDialer{
			Net:              buildDialer(cfg, logger),
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		URL:        url,
		Negotiator: neg,
		Logger:     logger,
	}, nil
}

func buildListen(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	gen, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}

	pacer := segment.NoDelay
	if cfg.Pacing > 0 {
		pacer = segment.Interval(cfg.Pacing)
	}

	return &ListenMode{
		Address:     util.ListenAddr(cfg.Port),
		Path:        cfg.Path,
		MetricsPath: cfg.MetricsPath,
		GracePeriod: config.DefaultGracePeriod,
		Capability: &capability.Relay{
			Generator: gen,
			Segmenter: &segment.Segmenter{Pacer: pacer, Logger: logger, Metrics: m},
			Logger:    logger,
			Metrics:   m,
		},
		Metrics: m,
		Logger:  logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the net-level dialer under the websocket.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   config.DefaultConnTimeout,
			Keepalive:     config.DefaultSSHKeepalive,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: config.DefaultConnTimeout}
}

// buildGenerator selects the relay's token source.
func buildGenerator(cfg *config.Config) (upstream.Generator, error) {
	switch cfg.Generator {
	case config.GeneratorOpenAI, "":
		return &upstream.OpenAI{BaseURL: cfg.OpenAIBaseURL, Model: cfg.Model}, nil
	case config.GeneratorEcho:
		return upstream.Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}
