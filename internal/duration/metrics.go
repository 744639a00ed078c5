package duration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDurationSource = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duration_resolutions_total",
	Help: "Duration estimates by resolving tier",
}, []string{"source"})
