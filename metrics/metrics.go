// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "browserfetch"

// Fetch outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeAbsent = "absent"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Fetch calls by operation and outcome.",
	}, []string{"op", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Wall time of a fetch call, session teardown included.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"op"})

	challengeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenge_total",
		Help:      "Challenge solving results (passed, failed, error).",
	}, []string{"result"})

	idleTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idle_timeouts_total",
		Help:      "Network idle waits that hit their timeout.",
	})

	teardownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "teardown_errors_total",
		Help:      "Browser resources whose close call failed.",
	}, []string{"resource"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fetch_in_flight",
		Help:      "Fetch calls currently holding a browser session.",
	})
)

// RecordFetch counts one finished fetch call.
func RecordFetch(op string, ok bool, elapsed time.Duration) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeAbsent
	}
	fetchTotal.WithLabelValues(op, outcome).Inc()
	fetchDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func RecordChallenge(result string) {
	challengeTotal.WithLabelValues(result).Inc()
}

func RecordIdleTimeout() {
	idleTimeouts.Inc()
}

func RecordTeardownError(resource string) {
	teardownErrors.WithLabelValues(resource).Inc()
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	inFlight.Inc()
	return inFlight.Dec
}
