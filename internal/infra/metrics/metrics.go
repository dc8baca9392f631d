package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var (
	StepExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "steps",
		Name:      "executions_total",
		Help:      "Finished step executions by step type and terminal status",
	}, []string{"step", "status"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "provisioner",
		Subsystem: "steps",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of step executions including provider calls",
		Buckets:   histogramBuckets,
	}, []string{"step"})

	StepsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "provisioner",
		Subsystem: "steps",
		Name:      "in_flight",
		Help:      "Step executions currently running in this process",
	})

	StartConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "steps",
		Name:      "start_conflicts_total",
		Help:      "Start requests for steps already running or completed",
	}, []string{"step", "reason"})

	LeasesReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "steps",
		Name:      "leases_reaped_total",
		Help:      "IN_PROGRESS steps failed because their lease expired",
	})
)

func init() {
	prometheus.MustRegister(StepExecutions, StepDuration, StepsInFlight, StartConflicts, LeasesReaped)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
