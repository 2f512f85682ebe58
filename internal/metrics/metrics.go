// Package metrics exposes Prometheus counters for sync activity. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	fanoutFetches  *prometheus.CounterVec
	mirrorUpserts  *prometheus.CounterVec
	assetDownloads *prometheus.CounterVec
	loads          *prometheus.CounterVec
	connected      prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fanoutFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_fanout_fetches_total",
			Help: "Fan-out fetches by outcome (success or skip).",
		}, []string{"result"}),
		mirrorUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_mirror_upserts_total",
			Help: "Local mirror upserts by entity kind.",
		}, []string{"kind"}),
		assetDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_asset_downloads_total",
			Help: "Image asset downloads by outcome.",
		}, []string{"result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_loads_total",
			Help: "Top-level loads by read path (online or offline).",
		}, []string{"path"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_connected",
			Help: "1 while the backend is reachable, 0 otherwise.",
		}),
	}
	m.registry.MustRegister(
		m.fanoutFetches,
		m.mirrorUpserts,
		m.assetDownloads,
		m.loads,
		m.connected,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FanoutFetch(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.fanoutFetches.WithLabelValues("skip").Inc()
		return
	}
	m.fanoutFetches.WithLabelValues("success").Inc()
}

func (m *Metrics) MirrorUpsert(kind string) {
	if m == nil {
		return
	}
	m.mirrorUpserts.WithLabelValues(kind).Inc()
}

func (m *Metrics) AssetDownload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.assetDownloads.WithLabelValues("error").Inc()
		return
	}
	m.assetDownloads.WithLabelValues("success").Inc()
}

func (m *Metrics) Load(offline bool) {
	if m == nil {
		return
	}
	if offline {
		m.loads.WithLabelValues("offline").Inc()
		return
	}
	m.loads.WithLabelValues("online").Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
