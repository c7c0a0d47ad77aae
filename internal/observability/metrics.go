// Package observability holds the Prometheus metrics of the server and
// worker. Each Collector owns its registry so tests can build as many as
// they like.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
)

type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	VotesToggled      *prometheus.CounterVec
	ListingFallbacks  *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	EventsConsumed    *prometheus.CounterVec
	MetricsRecomputed prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		VotesToggled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_toggled_total",
				Help:      "Vote toggles by outcome",
			},
			[]string{"outcome"},
		),
		ListingFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_fallbacks_total",
				Help:      "Reads that fell back because an aggregated view was unavailable",
			},
			[]string{"resource"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_published_total",
				Help:      "Activity events handed to the broker",
			},
			[]string{"type", "status"},
		),
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_consumed_total",
				Help:      "Activity events handled by the worker",
			},
			[]string{"status"},
		),
		MetricsRecomputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_metrics_recomputed_total",
				Help:      "Completed profile_metrics refreshes",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.VotesToggled,
		c.ListingFallbacks,
		c.EventsPublished,
		c.EventsConsumed,
		c.MetricsRecomputed,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// VoteToggled implements vote.Recorder.
func (c *Collector) VoteToggled(outcome string) {
	c.VotesToggled.WithLabelValues(outcome).Inc()
}

// Degraded implements listing.DegradedRecorder.
func (c *Collector) Degraded(resource string) {
	c.ListingFallbacks.WithLabelValues(resource).Inc()
}

// EventPublished is an activity.Outcome.
func (c *Collector) EventPublished(kind activity.Kind, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.EventsPublished.WithLabelValues(string(kind), status).Inc()
}

func (c *Collector) EventConsumed(status string) {
	c.EventsConsumed.WithLabelValues(status).Inc()
}
