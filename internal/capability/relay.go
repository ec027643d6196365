package capability

import (
	"context"

	"github.com/google/uuid"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/internal/segment"
	"voxrelay/internal/upstream"
	"voxrelay/util"
)

// Relay serves chat requests: each text frame carries a ChatRequest,
// which is answered with paced word frames from the generator.  The
// connection stays open for further requests until the peer leaves.
type Relay struct {
	Generator upstream.Generator
	Segmenter *segment.Segmenter
	Logger    *util.Logger
	Metrics   *metrics.Collector
}

// Handle runs the request loop.  Malformed requests and generator
// failures are reported to the peer as error frames and only end the
// request they belong to; a transport failure ends the connection and
// is returned, except for an ordinary close by the peer.
func (r *Relay) Handle(ctx context.Context, conn Conn) error {
	logger := r.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	seg := r.Segmenter
	if seg == nil {
		seg = &segment.Segmenter{Logger: logger, Metrics: r.Metrics}
	}

	r.Metrics.SessionOpened()
	defer r.Metrics.SessionClosed()

	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			if util.IsClosed(err) || ctx.Err() != nil {
				logger.Verbose("connection closed")
				return nil
			}
			return err
		}
		r.Metrics.RequestReceived()

		reqID := uuid.NewString()[:8]
		rlog := logger.Named(reqID)

		if f.Kind != protocol.Control {
			if err := r.reject(ctx, conn, rlog, &ncerr.RequestError{Message: "binary frames are not accepted"}); err != nil {
				return err
			}
			continue
		}
		req, err := protocol.ParseChatRequest(f.Data)
		if err != nil {
			if err := r.reject(ctx, conn, rlog, err); err != nil {
				return err
			}
			continue
		}

		rlog.Verbose("request: %d chars of text", len([]rune(req.Text)))
		if err := r.serve(ctx, conn, rlog, seg, req); err != nil {
			return err
		}
	}
}

// serve runs one segmentation.  Only transport failures are returned.
func (r *Relay) serve(ctx context.Context, conn Conn, logger *util.Logger, seg *segment.Segmenter, req protocol.ChatRequest) error {
	stream, err := r.Generator.Stream(ctx, upstream.Request{
		APIKey: req.APIKey,
		System: req.Prompt,
		User:   req.Text,
	})
	if err != nil {
		r.Metrics.UpstreamFailed()
		r.Metrics.RecordError(err.Error())
		logger.Warn("generator: %v", err)
		return conn.WriteText(ctx, protocol.ErrorFrame(err.Error()))
	}
	defer stream.Close()

	st, err := seg.Run(ctx, stream, conn)
	if err != nil {
		if ncerr.Is(err, ncerr.ErrUpstream) {
			r.Metrics.UpstreamFailed()
			r.Metrics.RecordError(err.Error())
			return nil
		}
		return err
	}
	logger.Verbose("done: %d fragments, %d frames", st.Fragments, st.Frames)
	return nil
}

func (r *Relay) reject(ctx context.Context, conn Conn, logger *util.Logger, err error) error {
	r.Metrics.RequestRejected()
	logger.Warn("%v", err)
	return conn.WriteText(ctx, protocol.ErrorFrame(err.Error()))
}
