// Package metrics exposes prometheus collectors for refresh runs and store writes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsfeed"

// Upsert outcomes.
const (
	OutcomeSaved   = "saved"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
)

// Recorder owns its registry so tests and multiple instances never collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	refreshRuns       *prometheus.CounterVec
	refreshDuration   *prometheus.HistogramVec
	refreshInFlight   prometheus.Gauge
	lastSuccess       prometheus.Gauge
	articles          *prometheus.CounterVec
	partitionFailures *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	identities        *prometheus.CounterVec
}

// New registers every collector plus the go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Fetch-and-store runs by trigger and result.",
		}, []string{"trigger", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of fetch-and-store runs.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"trigger"}),
		refreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh is running.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles processed by outcome.",
		}, []string{"outcome"}),
		partitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_failures_total",
			Help:      "Provider partition calls that failed.",
		}, []string{"provider", "category", "country"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_decisions_total",
			Help:      "Staleness decisions taken on reads.",
		}, []string{"decision"}),
		identities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_resolutions_total",
			Help:      "Identity keys by derivation path.",
		}, []string{"source"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.refreshRuns,
		r.refreshDuration,
		r.refreshInFlight,
		r.lastSuccess,
		r.articles,
		r.partitionFailures,
		r.decisions,
		r.identities,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RefreshStarted marks a run in flight.
func (r *Recorder) RefreshStarted() {
	if r == nil {
		return
	}
	r.refreshInFlight.Set(1)
}

// RefreshFinished records the outcome of a run.
func (r *Recorder) RefreshFinished(trigger string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.refreshInFlight.Set(0)
	result := "success"
	if err != nil {
		result = "failure"
	} else {
		r.lastSuccess.SetToCurrentTime()
	}
	r.refreshRuns.WithLabelValues(trigger, result).Inc()
	r.refreshDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// Article counts one processed article.
func (r *Recorder) Article(outcome string) {
	if r == nil {
		return
	}
	r.articles.WithLabelValues(outcome).Inc()
}

// PartitionFailed counts one failed partition call.
func (r *Recorder) PartitionFailed(provider, category, country string) {
	if r == nil {
		return
	}
	r.partitionFailures.WithLabelValues(provider, category, country).Inc()
}

// Decision counts a staleness decision taken on a read.
func (r *Recorder) Decision(decision string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision).Inc()
}

// Identity counts the derivation path of a resolved key.
func (r *Recorder) Identity(source string) {
	if r == nil {
		return
	}
	r.identities.WithLabelValues(source).Inc()
}
