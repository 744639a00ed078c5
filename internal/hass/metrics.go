package hass

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHubReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_reconnects_total",
		Help: "Total websocket reconnects to the hub",
	})

	metricHubCircuitOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_circuit_open_total",
		Help: "Circuit breaker open events",
	})

	metricHubConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_connect_ms",
		Help:    "Time to establish and authenticate the hub connection (ms)",
		Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
	})

	metricHubCallMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_call_ms",
		Help:    "Hub service call round trip (ms)",
		Buckets: prometheus.ExponentialBuckets(5, 1.8, 10),
	}, []string{"service"})

	metricHubCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_call_errors_total",
		Help: "Failed hub service calls",
	}, []string{"service"})
)
