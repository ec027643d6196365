// Package segment re-cuts an incremental token stream into paced,
// whitespace-terminated word frames for a realtime consumer.
package segment

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/internal/upstream"
	"voxrelay/util"
)

// DefaultInterval is the pause after every emitted word.
const DefaultInterval = 100 * time.Millisecond

// space covers every rune a Unicode-aware \s would: the ASCII set,
// vertical tab, the information separators, NEL and the Z categories.
const space = `\s\v\x{1c}-\x{1f}\x{85}\p{Z}`

// wordRE matches one word unit: non-whitespace followed by whitespace.
// Whitespace can only precede a word at the start of the buffer; it is
// carried with that word so no input text is ever dropped.
var wordRE = regexp.MustCompile(`[` + space + `]*[^` + space + `]+[` + space + `]+`)

// Extract returns every complete word unit of buf, left to right, and
// the unmatched remainder after the last one.  With no match the
// remainder is buf itself.  Matches are maximal, so a remainder never
// contains another complete unit.
func Extract(buf string) (words []string, rest string) {
	locs := wordRE.FindAllStringIndex(buf, -1)
	if len(locs) == 0 {
		return nil, buf
	}
	words = make([]string, len(locs))
	for i, loc := range locs {
		words[i] = buf[loc[0]:loc[1]]
	}
	return words, buf[locs[len(locs)-1][1]:]
}

// ── Pacing ───────────────────────────────────────────────────────────

// Pacer suspends between emitted frames.
type Pacer interface {
	Pause(ctx context.Context) error
}

type interval time.Duration

// Interval returns a Pacer that sleeps d, or until ctx is done.
func Interval(d time.Duration) Pacer { return interval(d) }

func (p interval) Pause(ctx context.Context) error {
	if p <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(p))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay never pauses.
var NoDelay Pacer = interval(0)

// ── Segmenter ────────────────────────────────────────────────────────

// Emitter delivers one outbound text frame.
type Emitter interface {
	WriteText(ctx context.Context, text string) error
}

// Stats summarises one run.
type Stats struct {
	Fragments int
	Frames    int // word and remainder frames, sentinel excluded
	Chars     int
}

// Segmenter turns token fragments into paced word frames.  One
// Segmenter may serve many concurrent runs; the word buffer belongs to
// a single call of Run.
type Segmenter struct {
	Pacer   Pacer // nil means Interval(DefaultInterval)
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Run consumes stream until it is exhausted, emitting every complete
// word followed by a pause, then the remainder and the done sentinel.
// A generator failure emits an error frame instead of the sentinel and
// is returned as an UpstreamError.  An emit failure ends the run at once.
func (s *Segmenter) Run(ctx context.Context, stream upstream.TokenStream, out Emitter) (Stats, error) {
	pacer := s.Pacer
	if pacer == nil {
		pacer = Interval(DefaultInterval)
	}
	logger := s.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}

	var (
		st  Stats
		buf string
	)
	emit := func(frame string) error {
		if err := out.WriteText(ctx, frame); err != nil {
			return err
		}
		s.Metrics.FrameSent()
		return nil
	}
	emitPaced := func(word string) error {
		if err := emit(word); err != nil {
			return err
		}
		st.Frames++
		st.Chars += len(word)
		return pacer.Pause(ctx)
	}

	for {
		frag, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			var up *ncerr.UpstreamError
			if !errors.As(err, &up) {
				up = &ncerr.UpstreamError{Provider: "generator", Err: err}
			}
			logger.Warn("generator failed after %d fragments: %v", st.Fragments, up)
			if werr := emit(protocol.ErrorFrame(up.Error())); werr != nil {
				return st, werr
			}
			return st, up
		}
		st.Fragments++

		buf += frag
		words, rest := Extract(buf)
		for _, w := range words {
			if err := emitPaced(w); err != nil {
				return st, err
			}
		}
		buf = rest
	}

	if buf != "" {
		if err := pacer.Pause(ctx); err != nil {
			return st, err
		}
		if err := emit(buf); err != nil {
			return st, err
		}
		st.Frames++
		st.Chars += len(buf)
	}
	if err := emit(protocol.SentinelDone); err != nil {
		return st, err
	}
	logger.Debug("segmented %d fragments into %d frames", st.Fragments, st.Frames)
	return st, nil
}
