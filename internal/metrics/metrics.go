// Package metrics records engine outcomes in Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"courtcast/internal/model"
)

// Sink counts runs, delivery attempts and fetch failures.
type Sink struct {
	runs      *prometheus.CounterVec
	attempts  prometheus.Counter
	fetchErrs prometheus.Counter
	duration  prometheus.Histogram
}

// NewSink registers the engine collectors on reg. If reg is nil, the
// default registerer is used. Already-registered collectors are reused.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courtcast_runs_total",
		Help: "Schedule runs by category and outcome",
	}, []string{"category", "outcome"})
	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courtcast_delivery_attempts_total",
		Help: "Individual delivery attempts including retries",
	})
	fetchErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "courtcast_fetch_errors_total",
		Help: "Upstream inventory fetch failures",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "courtcast_invocation_seconds",
		Help:    "Wall time of one full scan invocation",
		Buckets: prometheus.DefBuckets,
	})

	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(attempts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			attempts = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fetchErrs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fetchErrs = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &Sink{runs: runs, attempts: attempts, fetchErrs: fetchErrs, duration: duration}, nil
}

func (s *Sink) RecordRun(category model.Category, outcome model.Outcome) {
	if s == nil {
		return
	}
	s.runs.WithLabelValues(string(category), string(outcome)).Inc()
}

func (s *Sink) RecordDeliveryAttempt() {
	if s == nil {
		return
	}
	s.attempts.Inc()
}

func (s *Sink) RecordFetchError() {
	if s == nil {
		return
	}
	s.fetchErrs.Inc()
}

func (s *Sink) ObserveInvocation(seconds float64) {
	if s == nil {
		return
	}
	s.duration.Observe(seconds)
}
