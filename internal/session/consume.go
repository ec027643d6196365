package session

import (
	"context"
	"fmt"
	"io"

	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/util"
)

// FrameReader delivers inbound frames in order.
type FrameReader interface {
	ReadFrame(ctx context.Context) (protocol.Frame, error)
}

// Classifier routes streaming-phase frames: control frames to the
// message interpreter, payload frames to the sink.
type Classifier struct {
	// EndOfStream is the discriminator value (type or status) that ends
	// the stream.  Empty means protocol.TypeFinishedByteStream.
	EndOfStream string

	// SniffJSON treats binary frames holding a JSON object as control
	// frames.  Some servers send their control messages that way.
	SniffJSON bool

	Logger  *util.Logger
	Metrics *metrics.Collector

	// Progress is called after each payload write.  Nil means
	// Logger.Progress.
	Progress func()
}

func (c *Classifier) endOfStream() string {
	if c.EndOfStream == "" {
		return protocol.TypeFinishedByteStream
	}
	return c.EndOfStream
}

// isEnd reports whether msg carries the end-of-stream discriminator.
func (c *Classifier) isEnd(msg protocol.ControlMessage) bool {
	eos := c.endOfStream()
	return msg.Type == eos || msg.Status == eos
}

// control reports whether f should be interpreted as a control message.
func (c *Classifier) control(f protocol.Frame) bool {
	if f.Kind == protocol.Control {
		return true
	}
	return c.SniffJSON && protocol.LooksLikeJSON(f.Data)
}

// Consume reads frames until the end-of-stream control message and
// returns the number of payload bytes written to w.  Any read, parse or
// write error ends consumption immediately; the caller owns w and must
// release it on every path.
func (c *Classifier) Consume(ctx context.Context, r FrameReader, w io.Writer) (int64, error) {
	logger := c.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	progress := c.Progress
	if progress == nil {
		progress = logger.Progress
	}

	var written int64
	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			return written, err
		}

		if c.control(f) {
			msg, err := protocol.ParseControl(f.Data)
			if err != nil {
				return written, fmt.Errorf("streaming: %w", err)
			}
			if c.isEnd(msg) {
				logger.Verbose("end of stream: %s", msg)
				return written, nil
			}
			logger.Verbose("ignoring control message during stream: %s", msg)
			continue
		}

		if len(f.Data) == 0 {
			continue
		}
		n, err := w.Write(f.Data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write sink: %w", err)
		}
		c.Metrics.PayloadWritten(int64(n))
		progress()
	}
}
