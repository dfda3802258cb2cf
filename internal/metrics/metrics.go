package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command Metrics
var (
	// CommandsTotal tracks chat commands by verb and result
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_commands_total",
			Help: "Total chat commands handled by command and result",
		},
		[]string{"command", "result"},
	)

	// CommandDuration tracks end-to-end command latency in seconds
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tweetrelay_command_duration_seconds",
			Help:    "Chat command duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)

	// CommandsRateLimitedTotal tracks commands refused by the per-user limiter
	CommandsRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetrelay_commands_rate_limited_total",
			Help: "Chat commands refused by the per-user rate limiter",
		},
	)
)

// Relay Metrics
var (
	// FollowedAuthors tracks the current size of the watch list
	FollowedAuthors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetrelay_followed_authors",
			Help: "Number of authors currently followed",
		},
	)

	// StreamOpen is 1 once the filtered stream has been opened
	StreamOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetrelay_stream_open",
			Help: "Whether the filtered stream is open (0/1)",
		},
	)

	// UpstreamCallsTotal tracks streaming-platform API calls by operation and status
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_upstream_calls_total",
			Help: "Upstream API calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	// EventsReceivedTotal tracks stream deliveries handed to the relay
	EventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetrelay_events_received_total",
			Help: "Stream events received from upstream",
		},
	)

	// EventsDroppedTotal tracks events that were never posted, by reason
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_events_dropped_total",
			Help: "Stream events dropped before posting by reason",
		},
		[]string{"reason"},
	)

	// NotificationsPostedTotal tracks downstream posts by status
	NotificationsPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetrelay_notifications_posted_total",
			Help: "Notifications posted downstream by status",
		},
		[]string{"status"},
	)

	// RelayQueueDepth tracks the actor's pending event count
	RelayQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetrelay_relay_queue_depth",
			Help: "Current relay event queue depth",
		},
	)

	// RelayPanicsTotal tracks relay actor panic recoveries
	RelayPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetrelay_relay_panics_total",
			Help: "Total relay actor panic recoveries",
		},
	)
)

// Handler serves the default registry, which holds the collectors above plus the Go
// runtime and process collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
