// Package metrics exposes Prometheus instruments for client sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parklink"

// Registry holds every parklink metric plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	FramesReceived = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Frames read from the server, by packet kind",
	}, []string{"kind"})

	FramesSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Frames written to the server, by packet kind",
	}, []string{"kind"})

	DecodeErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Frames dropped because their payload could not be decoded",
	})

	Disconnects = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disconnects_total",
		Help:      "Ended sessions, by cause",
	}, []string{"cause"})

	AuthResults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_results_total",
		Help:      "Auth responses received, by status",
	}, []string{"status"})

	RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time from request to response or timeout",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 12},
	}, []string{"request", "outcome"})

	RosterPlayers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "roster_players",
		Help:      "Players in the most recent roster snapshot",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
