package upstream

import (
	"bufio"
	"bytes"
	"io"
)

const maxEventSize = 1 << 20

// sseScanner yields the data payload of each server-sent event line.
type sseScanner struct {
	scanner *bufio.Scanner
	data    string
}

func newSSEScanner(r io.Reader) *sseScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseScanner{scanner: sc}
}

// Scan advances to the next data line, skipping blank lines, comments
// and other fields.
func (s *sseScanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		s.data = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))))
		return true
	}
	return false
}

func (s *sseScanner) Data() string { return s.data }

func (s *sseScanner) Err() error { return s.scanner.Err() }
