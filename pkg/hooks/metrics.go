package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
	"github.com/bromq-dev/mqttprobe/pkg/probe"
)

// MetricsHook records probe outcomes as Prometheus metrics.
type MetricsHook struct {
	Probes     *prometheus.CounterVec
	Connacks   *prometheus.CounterVec
	ConnectRTT *prometheus.HistogramVec
	PingRTT    *prometheus.HistogramVec
	Up         *prometheus.GaugeVec
}

// MetricsConfig configures the metrics hook.
type MetricsConfig struct {
	// Namespace prefixes every metric name (default: "mqttprobe").
	Namespace string

	// Registerer receives the collectors (default: a new registry).
	Registerer prometheus.Registerer
}

// NewMetricsHook creates the collectors and registers them.
func NewMetricsHook(cfg MetricsConfig) (*MetricsHook, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "mqttprobe"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	buckets := prometheus.ExponentialBuckets(0.001, 2, 14)
	h := &MetricsHook{
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "probes_total",
			Help:      "The total number of probes by outcome",
		}, []string{"target", "outcome"}),
		Connacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connacks_total",
			Help:      "The total number of CONNACK replies by return code",
		}, []string{"target", "return_code"}),
		ConnectRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "connect_rtt_seconds",
			Help:      "Time from sending CONNECT to receiving CONNACK",
			Buckets:   buckets,
		}, []string{"target"}),
		PingRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "ping_rtt_seconds",
			Help:      "Time from sending PINGREQ to receiving PINGRESP",
			Buckets:   buckets,
		}, []string{"target"}),
		Up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "up",
			Help:      "Whether the last probe of the target succeeded",
		}, []string{"target"}),
	}

	for _, c := range []prometheus.Collector{h.Probes, h.Connacks, h.ConnectRTT, h.PingRTT, h.Up} {
		if err := cfg.Registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *MetricsHook) ID() string { return "metrics" }

func (h *MetricsHook) OnConnack(ctx context.Context, target string, connack packet.Connack, rtt time.Duration) {
	h.Connacks.WithLabelValues(target, connack.ReturnCode.String()).Inc()
	h.ConnectRTT.WithLabelValues(target).Observe(rtt.Seconds())
}

func (h *MetricsHook) OnPing(ctx context.Context, target string, seq int, rtt time.Duration) {
	h.PingRTT.WithLabelValues(target).Observe(rtt.Seconds())
}

func (h *MetricsHook) OnResult(ctx context.Context, res *probe.Result) {
	outcome := Outcome(res)
	h.Probes.WithLabelValues(res.Target, outcome).Inc()
	if outcome == OutcomeOK {
		h.Up.WithLabelValues(res.Target).Set(1)
	} else {
		h.Up.WithLabelValues(res.Target).Set(0)
	}
}

// Probe outcomes as reported in metrics and stored results.
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeError   = "error"
)

// Outcome classifies a result.
func Outcome(res *probe.Result) string {
	switch {
	case res.OK():
		return OutcomeOK
	case errors.Is(res.Err, probe.ErrRefused):
		return OutcomeRefused
	default:
		return OutcomeError
	}
}
