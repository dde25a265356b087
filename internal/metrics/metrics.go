// Package metrics exposes Prometheus collectors for the job pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	shorts = "shorts"

	jobsSubmittedTotal   = "jobs_submitted_total"
	jobsFinishedTotal    = "jobs_finished_total"
	jobsInState          = "jobs_in_state"
	stageDurationSeconds = "stage_duration_seconds"
	footageAttemptsTotal = "footage_search_attempts_total"

	// Labels
	stateLabel   = "state"
	stageLabel   = "stage"
	outcomeLabel = "outcome"
)

// Footage search attempt outcomes.
const (
	OutcomeFound     = "found"
	OutcomeEmpty     = "empty"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
)

var jobsSubmittedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: shorts,
		Name:      jobsSubmittedTotal,
		Help:      "number of accepted video jobs",
	},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shorts,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal state",
	},
	[]string{stateLabel},
)

var jobsInStateMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: shorts,
		Name:      jobsInState,
		Help:      "number of known jobs in each state",
	},
	[]string{stateLabel},
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: shorts,
		Name:      stageDurationSeconds,
		Help:      "duration of external stage calls",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	},
	[]string{stageLabel},
)

var footageAttemptsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shorts,
		Name:      footageAttemptsTotal,
		Help:      "footage search attempts by outcome",
	},
	[]string{outcomeLabel},
)

func IncreaseJobsSubmitted() {
	jobsSubmittedMetric.Inc()
}

func IncreaseJobsFinished(state string) {
	jobsFinishedMetric.With(prometheus.Labels{stateLabel: state}).Inc()
}

// UpdateJobsInState sets the gauge for every state in counts.
func UpdateJobsInState(counts map[string]int) {
	for state, n := range counts {
		jobsInStateMetric.With(prometheus.Labels{stateLabel: state}).Set(float64(n))
	}
}

func ObserveStage(stage string, d time.Duration) {
	stageDurationMetric.With(prometheus.Labels{stageLabel: stage}).Observe(d.Seconds())
}

func IncreaseFootageAttempt(outcome string) {
	footageAttemptsMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(jobsInStateMetric)
	prometheus.MustRegister(stageDurationMetric)
	prometheus.MustRegister(footageAttemptsMetric)
}
