package transmission

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects connection activity. A nil *Metrics records nothing, so
// connections without MetricsOption skip collection entirely.
type Metrics struct {
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
	framesRead    prometheus.Counter
	framesWritten prometheus.Counter
	networkReads  prometheus.Counter
	failures      *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total number of bytes consumed by reads, frame headers included",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total number of bytes accepted by the transport",
		}),
		framesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      "Total number of length-prefixed frames read",
		}),
		framesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Total number of length-prefixed frames written",
		}),
		networkReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_reads_total",
			Help:      "Total number of transport read calls",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of failed operations by kind",
		}, []string{"op", "kind"}),
	}
}

func (m *Metrics) read(n int) {
	if m != nil {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) written(n int) {
	if m != nil {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *Metrics) frameRead() {
	if m != nil {
		m.framesRead.Inc()
	}
}

func (m *Metrics) frameWritten() {
	if m != nil {
		m.framesWritten.Inc()
	}
}

func (m *Metrics) networkRead() {
	if m != nil {
		m.networkReads.Inc()
	}
}

func (m *Metrics) failure(err error) {
	if m == nil {
		return
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		m.failures.WithLabelValues(opErr.Op, kindLabel(opErr.Kind)).Inc()
		return
	}
	m.failures.WithLabelValues("unknown", kindLabel(err)).Inc()
}

func kindLabel(kind error) string {
	switch {
	case errors.Is(kind, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(kind, ErrExhausted):
		return "exhausted"
	case errors.Is(kind, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(kind, ErrTransport):
		return "transport"
	case errors.Is(kind, ErrInvalidPrefix):
		return "invalid_prefix"
	case errors.Is(kind, ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(kind, ErrConnectionClosed):
		return "closed"
	default:
		return "other"
	}
}
