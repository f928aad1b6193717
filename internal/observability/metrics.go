package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rider_core"

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "place_searches_total", Help: "Place searches issued, by outcome"},
		[]string{"outcome"},
	)
	StaleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "stale_results_discarded_total", Help: "Lookup completions dropped because a newer request superseded them"},
		[]string{"kind"},
	)
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "resolutions_total", Help: "Location resolutions, by source and outcome"},
		[]string{"source", "outcome"},
	)
	PlacesLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "places_request_duration_seconds", Help: "Places web service latency", Buckets: prometheus.DefBuckets},
		[]string{"endpoint"},
	)

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride lifecycle transitions, by target state"},
		[]string{"state"},
	)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Driver match attempts, by outcome"},
		[]string{"outcome"},
	)
	MatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Number of online drivers seen by the consumer"})

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Ride events written to the broker, by result"},
		[]string{"result"},
	)
	NotifierClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_clients", Help: "Connected lifecycle websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
