package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/manifold/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "manifold"

// Metrics holds the Prometheus collectors for one supervisor.
type Metrics struct {
	Spawns       *prometheus.CounterVec
	Respawns     *prometheus.CounterVec
	Exits        *prometheus.CounterVec
	Restarts     *prometheus.HistogramVec
	RelayBytes   *prometheus.CounterVec
	ShuttingDown prometheus.Gauge

	registerer prometheus.Registerer
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registerer: reg,
		Spawns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spawns_total",
				Help:      "Total number of nodes started, by role",
			},
			[]string{"role"},
		),
		Respawns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "respawns_total",
				Help:      "Total number of processes replaced after an unintentional exit, by role",
			},
			[]string{"role"},
		),
		Exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exits_total",
				Help:      "Total number of process exits, by role, reason and whether the node was retired",
			},
			[]string{"role", "reason", "final"},
		),
		Restarts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_restarts",
				Help:      "Restart count of a node at the time it was respawned",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"role"},
		),
		RelayBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_bytes_total",
				Help:      "Bytes delivered by each node's output relay",
			},
			[]string{"node"},
		),
		ShuttingDown: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "shutting_down",
				Help:      "1 once coordinated shutdown has begun",
			},
		),
	}
}

// TrackLive exposes the number of running processes, read from live at scrape time.
func (m *Metrics) TrackLive(live func() int) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_processes",
			Help:      "Processes currently tracked by the supervisor",
		},
		func() float64 { return float64(live()) },
	))
}

// CountBytes matches supervisor.WithByteCounter.
func (m *Metrics) CountBytes(node domain.NodeID, n int) {
	m.RelayBytes.WithLabelValues(node.String()).Add(float64(n))
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSpawn: func(_ context.Context, e *domain.ProcessEvent) {
			m.Spawns.WithLabelValues(e.Role()).Inc()
		},
		OnExit: func(_ context.Context, e *domain.ProcessEvent) {
			m.Exits.WithLabelValues(e.Role(), e.Reason(), strconv.FormatBool(e.Final)).Inc()
		},
		OnRespawn: func(_ context.Context, e *domain.ProcessEvent) {
			m.Respawns.WithLabelValues(e.Role()).Inc()
			m.Restarts.WithLabelValues(e.Role()).Observe(float64(e.Restarts))
		},
		OnShutdown: func(_ context.Context, _ *domain.ShutdownEvent) {
			m.ShuttingDown.Set(1)
		},
	}
}
