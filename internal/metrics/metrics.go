// Package metrics exposes query counters and latencies to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Outcomes of a query.
const (
	OutcomeOK       = "ok"
	OutcomeParse    = "parse_error"
	OutcomePolicy   = "policy_error"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Transports a query arrives through.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

var (
	// queriesTotal counts queries. Labels: entity, transport, outcome.
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emquery",
		Name:      "queries_total",
		Help:      "Total queries by entity, transport and outcome",
	}, []string{"entity", "transport", "outcome"})

	// queryDuration measures parse plus execution time of successful queries.
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "emquery",
		Name:      "query_duration_seconds",
		Help:      "Query parse and execution latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"entity", "transport"})

	// queryRows tracks how many records a data query returned.
	queryRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "emquery",
		Name:      "query_rows",
		Help:      "Records returned per data query",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// Outcome classifies a query error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, qerr.ErrParse):
		return OutcomeParse
	case errors.Is(err, qerr.ErrPolicy):
		return OutcomePolicy
	case errors.Is(err, catalog.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}

// Observe records one query. rows is negative for count and schema queries.
func Observe(entity, transport string, start time.Time, rows int, err error) {
	queriesTotal.WithLabelValues(entity, transport, Outcome(err)).Inc()
	if err != nil {
		return
	}
	queryDuration.WithLabelValues(entity, transport).Observe(time.Since(start).Seconds())
	if rows >= 0 {
		queryRows.Observe(float64(rows))
	}
}
