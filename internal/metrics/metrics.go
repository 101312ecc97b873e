package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of the counting pipeline.
type Metrics struct {
	// Loop counters
	Ticks          atomic.Uint64
	DeferredTicks  atomic.Uint64
	Cycles         atomic.Uint64
	DetectorErrors atomic.Uint64
	CaptureErrors  atomic.Uint64
	ReportFailures atomic.Uint64

	// Tracking state
	ActiveTracks       atomic.Uint64
	RetainedIdentities atomic.Uint64 // identities holding at least one marker

	// Processing latency of the last cycle, detector included
	CycleLatencyMs atomic.Uint64

	zoneEntries   *prometheus.CounterVec
	zoneOccupancy *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		zoneEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonecounter_zone_entries_total",
			Help: "Counted zone entries",
		}, []string{"zone"}),
		zoneOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zonecounter_zone_occupancy",
			Help: "Tracks currently inside the zone",
		}, []string{"zone"}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.zoneEntries, m.zoneOccupancy)

	gauges := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"zonecounter_ticks_total", "Loop ticks observed", &m.Ticks},
		{"zonecounter_deferred_ticks_total", "Ticks deferred because the source was paused or ended", &m.DeferredTicks},
		{"zonecounter_cycles_total", "Detection cycles completed", &m.Cycles},
		{"zonecounter_detector_errors_total", "Cycles skipped because the detector failed", &m.DetectorErrors},
		{"zonecounter_capture_errors_total", "Cycles skipped because no frame could be captured", &m.CaptureErrors},
		{"zonecounter_report_failures_total", "Failed count and zone pushes", &m.ReportFailures},
		{"zonecounter_active_tracks", "Tracks in the current active set", &m.ActiveTracks},
		{"zonecounter_retained_identities", "Identities with crossing markers kept in memory", &m.RetainedIdentities},
		{"zonecounter_cycle_latency_ms", "Duration of the last detection cycle in milliseconds", &m.CycleLatencyMs},
	}
	for _, g := range gauges {
		v := g.value
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// ObserveEntry counts one entry for the zone label.
func (m *Metrics) ObserveEntry(zone string) {
	m.zoneEntries.WithLabelValues(zone).Inc()
}

// SetOccupancy records the current occupancy of a zone.
func (m *Metrics) SetOccupancy(zone string, current int) {
	m.zoneOccupancy.WithLabelValues(zone).Set(float64(current))
}

// ForgetZone drops the per-zone series of a deleted zone.
func (m *Metrics) ForgetZone(zone string) {
	m.zoneEntries.DeleteLabelValues(zone)
	m.zoneOccupancy.DeleteLabelValues(zone)
}

// UpdateCycleLatency stores how long the last cycle took.
func (m *Metrics) UpdateCycleLatency(d time.Duration) {
	m.CycleLatencyMs.Store(uint64(d.Milliseconds()))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
