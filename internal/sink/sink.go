// Package sink provides the write-append destinations that receive a
// session's payload frames.
package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink is an append-only destination for payload bytes.  Close must be
// safe to call more than once; only the first call releases anything.
type Sink interface {
	io.Writer
	Close() error
	Name() string
}

// Opener creates the sink for one session.  It is called lazily, when
// the session enters its streaming phase, with the session's id.
type Opener func(sessionID string) (Sink, error)

// ── File sink ────────────────────────────────────────────────────────

// FileSink appends to a file on disk.
type FileSink struct {
	path string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// OpenFile creates (or appends to) path, creating parent directories.
func OpenFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &FileSink{path: path, f: f}, nil
}

// Write appends p.  Writing after Close returns os.ErrClosed.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.f.Write(p)
}

// Close flushes the file to disk and closes it.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	syncErr := s.f.Sync()
	if err := s.f.Close(); err != nil {
		return err
	}
	return syncErr
}

// Name returns the file path.
func (s *FileSink) Name() string { return s.path }

// FileName builds the session-unique output name
// tts_output_<YYYYMMDD_HHMMSS>_<id8>.<format>.  The id suffix keeps two
// sessions started in the same second apart.
func FileName(now time.Time, sessionID, format string) string {
	id := sessionID
	if len(id) > 8 {
		id = id[:8]
	}
	name := "tts_output_" + now.Format("20060102_150405")
	if id != "" {
		name += "_" + id
	}
	if format != "" {
		name += "." + format
	}
	return name
}

// FileOpener returns an Opener that writes into dir, naming each file
// after the clock and the session id.
func FileOpener(dir, format string) Opener {
	return func(sessionID string) (Sink, error) {
		return OpenFile(filepath.Join(dir, FileName(time.Now(), sessionID, format)))
	}
}

// ── Memory sink ──────────────────────────────────────────────────────

// Memory collects payload bytes in memory.
type Memory struct {
	name string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	closes int
}

// NewMemory returns an empty in-memory sink.
func NewMemory(name string) *Memory { return &Memory{name: name} }

func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	return m.buf.Write(p)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.closed = true
	return nil
}

func (m *Memory) Name() string { return m.name }

// Bytes returns a copy of everything written so far.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Closes returns how many times Close was called.
func (m *Memory) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
