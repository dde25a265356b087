package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

func queuedJob(id string) *Job {
	return &Job{
		ID:        id,
		State:     StateQueued,
		Scenes:    []video.SceneInput{{Text: "t", SearchTerms: []string{"s"}}},
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_DequeueFIFO(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))
	s.Add(queuedJob("b"))

	first, ok := s.Dequeue()
	if !ok || first.ID != "a" {
		t.Fatalf("Dequeue() = %s, %v; want a", first.ID, ok)
	}
	if first.State != StateProcessing || first.StartedAt == nil {
		t.Errorf("dequeued job = %+v, want processing with start time", first)
	}
	if first.Progress.Stage != StageSceneProcessing || first.Progress.TotalScenes != 1 {
		t.Errorf("progress = %+v", first.Progress)
	}

	second, _ := s.Dequeue()
	if second.ID != "b" {
		t.Errorf("second = %s, want b", second.ID)
	}
	if _, ok := s.Dequeue(); ok {
		t.Error("queue should be empty")
	}
}

func TestStore_Transition(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))

	if _, err := s.Transition("a", StateReady, nil); !errors.Is(err, video.ErrConflict) {
		t.Errorf("queued -> ready error = %v, want ErrConflict", err)
	}
	s.Dequeue()

	j, err := s.Transition("a", StateFailed, func(j *Job) { j.Error = "boom" })
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if j.State != StateFailed || j.Error != "boom" || j.FinishedAt == nil {
		t.Errorf("job = %+v", j)
	}

	if _, err := s.Transition("a", StateReady, nil); !errors.Is(err, video.ErrConflict) {
		t.Errorf("terminal transition error = %v, want ErrConflict", err)
	}
	if _, err := s.Transition("missing", StateReady, nil); !errors.Is(err, video.ErrNotFound) {
		t.Errorf("missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_SetProgressOnlyWhileProcessing(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))

	s.SetProgress("a", Progress{Stage: StageRendering})
	if j, _ := s.Get("a"); j.Progress.Stage != "" {
		t.Errorf("queued job progress changed: %+v", j.Progress)
	}

	s.Dequeue()
	s.SetProgress("a", Progress{Stage: StageRendering, Fraction: 0.5})
	if j, _ := s.Get("a"); j.Progress.Fraction != 0.5 {
		t.Errorf("progress = %+v", j.Progress)
	}

	s.Transition("a", StateReady, nil)
	s.SetProgress("a", Progress{Stage: StageSaving})
	if j, _ := s.Get("a"); j.Progress.Stage != StageRendering {
		t.Errorf("terminal job progress changed: %+v", j.Progress)
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))
	s.Add(queuedJob("b"))
	s.Dequeue()

	if _, err := s.Remove("a"); !errors.Is(err, video.ErrConflict) {
		t.Errorf("remove processing error = %v, want ErrConflict", err)
	}
	if _, err := s.Remove("b"); err != nil {
		t.Fatalf("remove queued error = %v", err)
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", s.QueueLen())
	}
	if _, err := s.Remove("b"); !errors.Is(err, video.ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}
	if got := len(s.List()); got != 1 {
		t.Errorf("List() = %d jobs, want 1", got)
	}
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))

	j, _ := s.Get("a")
	j.State = StateReady
	j.Error = "mutated"

	again, _ := s.Get("a")
	if again.State != StateQueued || again.Error != "" {
		t.Errorf("store mutated through snapshot: %+v", again)
	}
}

func TestStore_RestoreKeepsCreationOrder(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	live := queuedJob("live")
	live.CreatedAt = base.Add(time.Hour)
	s.Add(live)

	s.Restore([]Job{
		{ID: "old", State: StateReady, CreatedAt: base},
		{ID: "stale", State: StateProcessing, CreatedAt: base},
		{ID: "live", State: StateFailed, CreatedAt: base},
	})

	list := s.List()
	if len(list) != 2 || list[0].ID != "old" || list[1].ID != "live" {
		t.Fatalf("List() = %+v", list)
	}
	if list[1].State != StateQueued {
		t.Error("restore must not overwrite live jobs")
	}
}

func TestStore_Counts(t *testing.T) {
	s := NewStore()
	s.Add(queuedJob("a"))
	s.Add(queuedJob("b"))
	s.Dequeue()

	c := s.Counts()
	if c[StateQueued] != 1 || c[StateProcessing] != 1 || c[StateReady] != 0 {
		t.Errorf("Counts() = %v", c)
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateQueued, StateProcessing, true},
		{StateQueued, StateReady, false},
		{StateProcessing, StateReady, true},
		{StateProcessing, StateFailed, true},
		{StateReady, StateFailed, false},
		{StateFailed, StateQueued, false},
	}
	for _, tt := range tests {
		if got := isValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
