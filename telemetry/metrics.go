// Package telemetry holds the prometheus collectors shared by every simulated process.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "messages_sent_total",
			Help:      "Membership messages handed to the transport, by type.",
		},
		[]string{"type"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "messages_received_total",
			Help:      "Membership messages processed by a detector, by type.",
		},
		[]string{"type"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "messages_dropped_total",
			Help:      "Messages discarded before processing, by reason.",
		},
		[]string{"reason"},
	)

	DecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "decode_errors_total",
			Help:      "Inbound datagrams that could not be decoded.",
		},
	)

	Members = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gossipfd",
			Name:      "members",
			Help:      "Size of the local membership list, self included.",
		},
		[]string{"process"},
	)

	FailuresDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "failures_detected_total",
			Help:      "Peers removed by timeout.",
		},
		[]string{"process"},
	)

	Evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipfd",
			Name:      "evictions_total",
			Help:      "Peers removed to keep the partial view bounded.",
		},
		[]string{"process"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gossipfd",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one protocol cycle.",
			// 100us .. ~0.8s
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gossipfd",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesSent, MessagesReceived, MessagesDropped, DecodeErrors,
		Members, FailuresDetected, Evictions, TickDuration, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until the returned server is closed.
// Listen errors other than a normal close are passed to onErr.
func Serve(addr string, onErr func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && onErr != nil {
			onErr(err)
		}
	}()
	return srv
}

// Forget drops the per-process series of a process that left the simulation
func Forget(process string) {
	Members.DeleteLabelValues(process)
	FailuresDetected.DeleteLabelValues(process)
	Evictions.DeleteLabelValues(process)
}
