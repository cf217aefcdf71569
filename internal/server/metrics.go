package server

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "orgbd"

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	sessionsRejected prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	frames           *prometheus.CounterVec
	drops            *prometheus.CounterVec
	frameErrors      *prometheus.CounterVec
	resyncBytes      prometheus.Counter
	payloadBytes     prometheus.Counter
	dispatchLatency  prometheus.Histogram
}

// NewMetrics creates the server collectors and registers them on reg.
// A nil reg returns nil metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil //nolint:nilnil // nil registry means metrics are off
	}

	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Client sessions currently open",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Client sessions accepted",
		}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "rejected_total",
			Help:      "Connections closed because the connection limit was reached",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Client sessions closed, by reason",
		}, []string{"reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "requests",
			Name:      "frames_total",
			Help:      "Complete frames received, by packet and outcome",
		}, []string{"packet", "outcome"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "requests",
			Name:      "dropped_total",
			Help:      "Requests dropped without effect, by reason",
		}, []string{"reason"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wire",
			Name:      "frame_errors_total",
			Help:      "Session-ending framing errors, by kind",
		}, []string{"kind"}),
		resyncBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wire",
			Name:      "resync_discarded_bytes_total",
			Help:      "Bytes skipped while searching for the frame magic",
		}),
		payloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wire",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes received in complete frames",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "requests",
			Name:      "dispatch_duration_seconds",
			Help:      "Time to validate, apply and reply to one frame",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.sessionsActive, m.sessionsTotal, m.sessionsRejected, m.sessionsClosed,
		m.frames, m.drops, m.frameErrors, m.resyncBytes, m.payloadBytes, m.dispatchLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering server metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) sessionRejected() {
	if m == nil {
		return
	}
	m.sessionsRejected.Inc()
}

func (m *Metrics) sessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) frameHandled(packet string, o Outcome, payload int, d time.Duration) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(packet, o.Status).Inc()
	if o.Dropped() {
		m.drops.WithLabelValues(o.DropReason()).Inc()
	}
	m.payloadBytes.Add(float64(payload))
	m.dispatchLatency.Observe(d.Seconds())
}

func (m *Metrics) frameError(kind string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) resync(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.resyncBytes.Add(float64(n))
}
