// Package metrics defines the indexer's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument. All of them are registered on one
// registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	EventsIgnored   *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	EntityWrites    *prometheus.CounterVec
	CheckpointBlock prometheus.Gauge

	ArchiveFlushes   *prometheus.CounterVec
	ArchivedEvents   prometheus.Counter
	SnapshotsWritten prometheus.Counter
	PublishFailures  prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WebsocketClients prometheus.Gauge
}

// New creates the instruments on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_events_processed_total",
			Help: "Events whose handler completed and committed.",
		}, []string{"kind"}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_events_skipped_total",
			Help: "Events dropped by their handler; only the checkpoint moved.",
		}, []string{"kind"}),
		EventsIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_events_ignored_total",
			Help: "Events not handled: duplicates at or below the checkpoint, or logs of unfollowed contracts.",
		}, []string{"reason"}),
		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omen_event_duration_seconds",
			Help:    "Time to handle and commit one event.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
		EntityWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_entity_writes_total",
			Help: "Entity upserts committed.",
		}, []string{"entity"}),
		CheckpointBlock: f.NewGauge(prometheus.GaugeOpts{
			Name: "omen_checkpoint_block",
			Help: "Block of the last committed event.",
		}),

		ArchiveFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_archive_flushes_total",
			Help: "Event archive uploads by result.",
		}, []string{"result"}),
		ArchivedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_archived_events_total",
			Help: "Events uploaded to the archive.",
		}),
		SnapshotsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_snapshots_written_total",
			Help: "Entity snapshots uploaded.",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_publish_failures_total",
			Help: "Entity change notifications that could not be published.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "omen_http_requests_total",
			Help: "API requests by route and status.",
		}, []string{"route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omen_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WebsocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "omen_websocket_clients",
			Help: "Connected websocket clients.",
		}),
	}
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
