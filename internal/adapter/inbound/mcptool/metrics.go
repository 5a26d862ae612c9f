package mcptool

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dash-gate/dashgate/internal/domain/audit"
)

// Metrics holds the Prometheus metrics for the tool surface.
type Metrics struct {
	ToolCalls        *prometheus.CounterVec
	ToolDuration     *prometheus.HistogramVec
	AuthzDecisions   *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ToolCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashgate",
				Name:      "tool_calls_total",
				Help:      "Total tool calls processed",
			},
			[]string{"tool", "status"}, // status=ok/error
		),
		ToolDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dashgate",
				Name:      "tool_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		AuthzDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashgate",
				Name:      "authz_decisions_total",
				Help:      "Authorization decisions by operation and result",
			},
			[]string{"operation", "result"},
		),
		UpstreamRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashgate",
				Name:      "upstream_requests_total",
				Help:      "Total requests to Grafana clusters",
			},
			[]string{"cluster", "status"},
		),
	}
}

// ObserveTrail wraps an audit store so every appended record also counts
// toward the authorization decision metric.
func (m *Metrics) ObserveTrail(next audit.Store) audit.Store {
	return &observedTrail{metrics: m, next: next}
}

type observedTrail struct {
	metrics *Metrics
	next    audit.Store
}

func (t *observedTrail) Append(ctx context.Context, rec audit.Record) error {
	t.metrics.AuthzDecisions.WithLabelValues(rec.Operation, string(rec.Decision)).Inc()
	return t.next.Append(ctx, rec)
}

func (t *observedTrail) Close() error {
	return t.next.Close()
}
