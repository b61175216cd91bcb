package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transflow_transfers_total",
		Help: "Transfers by terminal status",
	}, []string{"status"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transflow_step_duration_seconds",
		Help:    "Step execution latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"step", "outcome"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transflow_compensations_total",
		Help: "Compensation attempts by step and outcome",
	}, []string{"step", "outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transflow_breaker_state",
		Help: "Circuit breaker state per dependency (0=closed, 1=open, 2=half-open)",
	}, []string{"dependency"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transflow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transflow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})
)
