// Package metrics holds the Prometheus collectors of the service.
//
// Labels are limited to small fixed sets (route pattern, event type,
// outcome) so cardinality stays bounded.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	selections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_selections_total",
			Help: "Provider selections by outcome (won, lost, failed).",
		},
		[]string{"outcome"},
	)

	messages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Messages accepted by the chat store.",
		},
	)

	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_total",
			Help: "Events handed to the fan-out layer by driver and result.",
		},
		[]string{"driver", "result"},
	)

	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_ws_connections",
			Help: "Currently open websocket connections.",
		},
	)

	presenceTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_online_transitions_total",
			Help: "Offline to online presence transitions.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, selections, messages, events, subscribers, presenceTransitions)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, took time.Duration) {
	httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLat.WithLabelValues(method, route).Observe(took.Seconds())
}

// Selection records a Match Coordinator outcome.
func Selection(outcome string) { selections.WithLabelValues(outcome).Inc() }

// MessagePosted counts an accepted chat message.
func MessagePosted() { messages.Inc() }

// Event counts an event handled by a fan-out driver. result is "sent" or "dropped".
func Event(driver, result string) { events.WithLabelValues(driver, result).Inc() }

// ConnOpened and ConnClosed track live websocket connections.
func ConnOpened() { subscribers.Inc() }
func ConnClosed() { subscribers.Dec() }

// CameOnline counts a presence transition.
func CameOnline() { presenceTransitions.Inc() }
