// Package metrics records counters for one generator run and exports them in
// the Prometheus text format for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "singbox_ruleset"

// Origin labels where a rule source came from.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Recorder holds the collectors of a run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	entries      *prometheus.CounterVec
	rules        *prometheus.CounterVec
	lineWarnings *prometheus.CounterVec
	downloads    *prometheus.CounterVec
	downloadSize *prometheus.CounterVec
	asnNetworks  *prometheus.GaugeVec
	lastSuccess  prometheus.Gauge
	duration     prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Rule-set entries written, by origin.",
			},
			[]string{"origin"},
		),
		rules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_total",
				Help:      "Distinct rule values written, by field.",
			},
			[]string{"field"},
		),
		lineWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "line_warnings_total",
				Help:      "Rule lines skipped, by error code.",
			},
			[]string{"code"},
		),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Downloads attempted, by target and result.",
			},
			[]string{"target", "result"},
		),
		downloadSize: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Bytes downloaded, by target.",
			},
			[]string{"target"},
		),
		asnNetworks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "asn_networks",
				Help:      "CIDR blocks loaded into the ASN index, by family.",
			},
			[]string{"family"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run.",
		}),
	}
	r.registry.MustRegister(r.entries, r.rules, r.lineWarnings, r.downloads, r.downloadSize, r.asnNetworks, r.lastSuccess, r.duration)
	return r
}

// Entry counts one written rule set and its per-field sizes.
func (r *Recorder) Entry(origin string, fieldSizes map[string]int) {
	if r == nil {
		return
	}
	r.entries.WithLabelValues(origin).Inc()
	for field, n := range fieldSizes {
		r.rules.WithLabelValues(field).Add(float64(n))
	}
}

// LineWarning counts one skipped rule line.
func (r *Recorder) LineWarning(code string) {
	if r == nil {
		return
	}
	r.lineWarnings.WithLabelValues(code).Inc()
}

// Download counts a download attempt.
func (r *Recorder) Download(target string, size int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.downloads.WithLabelValues(target, "error").Inc()
		return
	}
	r.downloads.WithLabelValues(target, "ok").Inc()
	r.downloadSize.WithLabelValues(target).Add(float64(size))
}

// ASNNetworks records the size of one ASN table.
func (r *Recorder) ASNNetworks(family string, n int) {
	if r == nil {
		return
	}
	r.asnNetworks.WithLabelValues(family).Set(float64(n))
}

// Finish records the run duration and, on success, the completion time.
func (r *Recorder) Finish(start time.Time, ok bool) {
	if r == nil {
		return
	}
	r.duration.Set(time.Since(start).Seconds())
	if ok {
		r.lastSuccess.SetToCurrentTime()
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
