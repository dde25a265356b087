package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("ready"))
	IncreaseJobsFinished("ready")
	if got := testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("ready")); got != before+1 {
		t.Errorf("jobs finished = %v, want %v", got, before+1)
	}

	IncreaseFootageAttempt(OutcomeEmpty)
	if got := testutil.ToFloat64(footageAttemptsMetric.WithLabelValues(OutcomeEmpty)); got < 1 {
		t.Errorf("footage attempts = %v, want >= 1", got)
	}
}

func TestUpdateJobsInState(t *testing.T) {
	UpdateJobsInState(map[string]int{"queued": 3, "processing": 1})
	if got := testutil.ToFloat64(jobsInStateMetric.WithLabelValues("queued")); got != 3 {
		t.Errorf("queued gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(jobsInStateMetric.WithLabelValues("processing")); got != 1 {
		t.Errorf("processing gauge = %v, want 1", got)
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage("synthesize", 1500*time.Millisecond)
	if n := testutil.CollectAndCount(stageDurationMetric); n == 0 {
		t.Error("stage histogram has no series")
	}
}
