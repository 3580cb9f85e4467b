package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "research_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// Instrument wires state-change metrics into a config before the breaker is built.
func Instrument(config Config) Config {
	original := config.OnStateChange
	config.OnStateChange = func(name string, from State, to State) {
		if original != nil {
			original(name, from, to)
		}
		circuitBreakerStateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
	return config
}

// RecordRequest records the outcome of a call made through a breaker
func RecordRequest(name string, err error) {
	result := "success"
	switch err {
	case nil:
	case ErrCircuitBreakerOpen, ErrTooManyRequests:
		result = "rejected"
	default:
		result = "failure"
	}
	circuitBreakerRequests.WithLabelValues(name, result).Inc()
}
