// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of voxrelay sessions and relay runs.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
//
// Collector also implements prometheus.Collector, so the listen mode can
// expose the same counters on /metrics without a second bookkeeping path.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks runtime metrics for voxrelay.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive    atomic.Int64
	sessionsTotal     atomic.Int64
	payloadBytes      atomic.Int64
	payloadFrames     atomic.Int64
	framesOut         atomic.Int64
	requestsTotal     atomic.Int64
	requestErrors     atomic.Int64
	upstreamErrors    atomic.Int64
	handshakeFailures atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.  A
// session is one client negotiation or one relay connection.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// HandshakeFailed records a session aborted by a handshake violation.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Add(1)
}

// HandshakeFailures returns the number of aborted handshakes.
func (c *Collector) HandshakeFailures() int64 {
	if c == nil {
		return 0
	}
	return c.handshakeFailures.Load()
}

// ── Payload and frame metrics ────────────────────────────────────────

// PayloadWritten records one payload frame of n bytes written to a sink.
func (c *Collector) PayloadWritten(n int64) {
	if c == nil {
		return
	}
	c.payloadFrames.Add(1)
	c.payloadBytes.Add(n)
}

// PayloadBytes returns the total payload bytes written to sinks.
func (c *Collector) PayloadBytes() int64 {
	if c == nil {
		return 0
	}
	return c.payloadBytes.Load()
}

// FrameSent records one outbound relay text frame.
func (c *Collector) FrameSent() {
	if c == nil {
		return
	}
	c.framesOut.Add(1)
}

// FramesSent returns the number of outbound relay frames.
func (c *Collector) FramesSent() int64 {
	if c == nil {
		return 0
	}
	return c.framesOut.Load()
}

// ── Relay request metrics ────────────────────────────────────────────

// RequestReceived records one inbound relay request.
func (c *Collector) RequestReceived() {
	if c == nil {
		return
	}
	c.requestsTotal.Add(1)
}

// RequestRejected records a malformed relay request.
func (c *Collector) RequestRejected() {
	if c == nil {
		return
	}
	c.requestErrors.Add(1)
}

// UpstreamFailed records a generator failure during a relay run.
func (c *Collector) UpstreamFailed() {
	if c == nil {
		return
	}
	c.upstreamErrors.Add(1)
}

// Requests returns the total number of relay requests.
func (c *Collector) Requests() int64 {
	if c == nil {
		return 0
	}
	return c.requestsTotal.Load()
}

// RejectedRequests returns the number of malformed relay requests.
func (c *Collector) RejectedRequests() int64 {
	if c == nil {
		return 0
	}
	return c.requestErrors.Load()
}

// ── Error tracking ───────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of recorded errors.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsTotal     int64  `json:"sessions_total"`
	HandshakeFailures int64  `json:"handshake_failures"`
	PayloadFrames     int64  `json:"payload_frames"`
	PayloadBytes      int64  `json:"payload_bytes"`
	FramesOut         int64  `json:"frames_out"`
	Requests          int64  `json:"requests"`
	RequestErrors     int64  `json:"request_errors"`
	UpstreamErrors    int64  `json:"upstream_errors"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:    c.sessionsActive.Load(),
		SessionsTotal:     c.sessionsTotal.Load(),
		HandshakeFailures: c.handshakeFailures.Load(),
		PayloadFrames:     c.payloadFrames.Load(),
		PayloadBytes:      c.payloadBytes.Load(),
		FramesOut:         c.framesOut.Load(),
		Requests:          c.requestsTotal.Load(),
		RequestErrors:     c.requestErrors.Load(),
		UpstreamErrors:    c.upstreamErrors.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// ── Prometheus ───────────────────────────────────────────────────────

const namespace = "voxrelay"

var (
	descSessionsActive = prometheus.NewDesc(namespace+"_sessions_active",
		"Sessions currently open.", nil, nil)
	descSessionsTotal = prometheus.NewDesc(namespace+"_sessions_total",
		"Sessions opened since start.", nil, nil)
	descHandshakeFailures = prometheus.NewDesc(namespace+"_handshake_failures_total",
		"Sessions aborted by a handshake violation.", nil, nil)
	descPayloadBytes = prometheus.NewDesc(namespace+"_payload_bytes_total",
		"Payload bytes written to output sinks.", nil, nil)
	descPayloadFrames = prometheus.NewDesc(namespace+"_payload_frames_total",
		"Payload frames written to output sinks.", nil, nil)
	descFramesOut = prometheus.NewDesc(namespace+"_frames_sent_total",
		"Text frames emitted by the relay.", nil, nil)
	descRequests = prometheus.NewDesc(namespace+"_requests_total",
		"Relay requests by outcome.", []string{"outcome"}, nil)
	descErrors = prometheus.NewDesc(namespace+"_errors_total",
		"Errors recorded by any component.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSessionsActive
	ch <- descSessionsTotal
	ch <- descHandshakeFailures
	ch <- descPayloadBytes
	ch <- descPayloadFrames
	ch <- descFramesOut
	ch <- descRequests
	ch <- descErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	ch <- prometheus.MustNewConstMetric(descSessionsActive, prometheus.GaugeValue, float64(s.SessionsActive))
	ch <- prometheus.MustNewConstMetric(descSessionsTotal, prometheus.CounterValue, float64(s.SessionsTotal))
	ch <- prometheus.MustNewConstMetric(descHandshakeFailures, prometheus.CounterValue, float64(s.HandshakeFailures))
	ch <- prometheus.MustNewConstMetric(descPayloadBytes, prometheus.CounterValue, float64(s.PayloadBytes))
	ch <- prometheus.MustNewConstMetric(descPayloadFrames, prometheus.CounterValue, float64(s.PayloadFrames))
	ch <- prometheus.MustNewConstMetric(descFramesOut, prometheus.CounterValue, float64(s.FramesOut))

	ok := s.Requests - s.RequestErrors - s.UpstreamErrors
	if ok < 0 {
		ok = 0
	}
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(ok), "ok")
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(s.RequestErrors), "malformed")
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(s.UpstreamErrors), "upstream_error")
	ch <- prometheus.MustNewConstMetric(descErrors, prometheus.CounterValue, float64(s.ErrorsTotal))
}

// Handler serves c in the Prometheus text format alongside the Go
// runtime collector.  A nil c still serves the runtime metrics.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if c != nil {
		reg.MustRegister(c)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
