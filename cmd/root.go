// Package cmd wires up the CLI flags and dispatches to the voxrelay core.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"voxrelay/config"
	"voxrelay/internal/core"
	"voxrelay/internal/metrics"
	"voxrelay/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X voxrelay/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// invocation is the outcome of parsing one command line.
type invocation struct {
	cfg         *config.Config
	fs          *flag.FlagSet
	showHelp    bool
	showVersion bool
}

// Execute parses args and runs the appropriate voxrelay mode.
func Execute(ctx context.Context, args []string) error {
	inv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if inv.showHelp || len(args) == 0 {
		printUsage(inv.fs)
		return nil
	}
	if inv.showVersion {
		fmt.Printf("voxrelay %s\n", version)
		return nil
	}

	cfg := inv.cfg

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	m := metrics.New()

	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Printf("dry run: %s\n", describe(cfg))
		return nil
	}

	err = mode.Run(ctx)
	logger.Debug("metrics: %s", m.JSON())
	return err
}

// parseArgs resolves the configuration for args.  Precedence, highest
// first: flags, VOXRELAY_* environment, the --config file, defaults.
func parseArgs(args []string) (*invocation, error) {
	cfg := config.Default()
	cfgPath := configPath(args)
	if cfgPath != "" {
		if err := config.LoadFile(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	// Flags are bound with the file/env values as their defaults, so
	// parsing only overwrites what was actually passed.
	inv := &invocation{cfg: cfg}
	fs := flag.NewFlagSet("voxrelay", flag.ContinueOnError)
	inv.fs = fs

	// ── TTS client ───────────────────────────────────────────────
	fs.StringVarP(&cfg.URL, "url", "u", cfg.URL, "Realtime TTS websocket URL")
	fs.StringVarP(&cfg.Token, "token", "t", cfg.Token, "TTS access token")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Authentication strategy")
	fs.StringVar(&cfg.Normalization, "normalization", cfg.Normalization, "Text normalization")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "Synthesis language")
	fs.StringVarP(&cfg.AudioFormat, "format", "f", cfg.AudioFormat, "Audio format (also the file extension)")
	fs.Float64Var(&cfg.AudioQuality, "quality", cfg.AudioQuality, "Audio quality")
	fs.StringVar(&cfg.AudioSpeed, "speed", cfg.AudioSpeed, "Audio speed")
	fs.StringVarP(&cfg.SpeakerID, "speaker", "s", cfg.SpeakerID, "Speaker id")
	fs.StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for audio files")
	fs.StringVar(&cfg.EndOfStream, "end-of-stream", cfg.EndOfStream, "Type that ends the byte stream")
	fs.BoolVar(&cfg.SniffJSON, "sniff-json", cfg.SniffJSON, "Treat JSON objects in binary frames as control")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Websocket opening handshake timeout")

	// ── chat relay ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the chat relay")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Relay port")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "Relay websocket route")
	fs.StringVar(&cfg.MetricsPath, "metrics-path", cfg.MetricsPath, "Prometheus route (empty disables)")
	fs.StringVarP(&cfg.Generator, "generator", "g", cfg.Generator, "Token generator: openai or echo")
	fs.StringVarP(&cfg.Model, "model", "m", cfg.Model, "OpenAI model")
	fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", cfg.OpenAIBaseURL, "OpenAI API base URL")
	fs.DurationVar(&cfg.Pacing, "pacing", cfg.Pacing, "Delay between emitted words")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbosity int
	var quiet bool
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")
	fs.StringVarP(&cfgPath, "config", "c", cfgPath, "YAML configuration file")

	fs.BoolVar(&inv.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&inv.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.Changed("verbose") {
		cfg.Verbose = int(util.LogNormal) + verbosity
	}
	if quiet {
		cfg.Verbose = int(util.LogQuiet)
	}

	// ── positional arguments ─────────────────────────────────────
	if texts := fs.Args(); len(texts) > 0 {
		if cfg.Listen {
			return nil, fmt.Errorf("unexpected arguments in listen mode: %s", strings.Join(texts, " "))
		}
		cfg.Texts = texts
	}
	return inv, nil
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config/-c ahead of the real parse, since the file
// sits below the flags in precedence.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "-c="); ok {
			return v
		}
		if (a == "--config" || a == "-c") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("VOXRELAY_CONFIG")
}

// describe summarises the resolved mode for --dry-run.
func describe(cfg *config.Config) string {
	if cfg.Listen {
		s := fmt.Sprintf("listen on %s%s, generator %s", util.ListenAddr(cfg.Port), cfg.Path, cfg.Generator)
		if cfg.Generator == config.GeneratorOpenAI {
			s += fmt.Sprintf(" (model %s)", cfg.Model)
		}
		if cfg.MetricsPath != "" {
			s += ", metrics on " + cfg.MetricsPath
		}
		return s
	}
	url, _ := util.WebSocketURL(cfg.URL, "")
	s := fmt.Sprintf("connect to %s, %d request(s), speaker %s, audio into %s/", url, len(cfg.Texts), cfg.SpeakerID, cfg.OutputDir)
	if cfg.TunnelEnabled {
		s += fmt.Sprintf(" via ssh %s@%s", cfg.TunnelUser, util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
	return s
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `voxrelay – realtime TTS client and chat relay v%s

Streams synthesised speech from a realtime TTS websocket into a file,
or relays chat completions word by word over websockets.

Usage:
  voxrelay [options] <text> [text...]          Synthesise text to audio
  voxrelay -l -p <port> [options]              Run the chat relay
  voxrelay -T user@gateway [options] <text>    Synthesise through an SSH tunnel

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  VOXRELAY_TOKEN, VOXRELAY_URL, VOXRELAY_PORT, ...   override the config file
  VOXRELAY_CONFIG                                    config file when -c is absent

Examples:
  voxrelay -t $TOKEN "Xin chào"                      Save speech to output/
  voxrelay -t $TOKEN -o /tmp -f wav "một" "hai"      Two requests, one file
  voxrelay -l -p 8000                                Relay on ws://:8000/ws/chat
  voxrelay -l -p 8000 -g echo --pacing 0             Offline relay for testing
`)
}
