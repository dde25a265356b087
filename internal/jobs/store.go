package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// Store is the synchronized job map and FIFO queue. Every read returns a
// copy, so callers never observe a job mid-update.
type Store struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	queue []string
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Add records a new queued job at the tail of the queue.
func (s *Store) Add(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	if job.State == StateQueued {
		s.queue = append(s.queue, job.ID)
	}
}

// Restore inserts previously persisted terminal jobs, keeping creation order.
func (s *Store) Restore(restored []Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range restored {
		j := restored[i]
		if _, exists := s.jobs[j.ID]; exists || !j.State.IsTerminal() {
			continue
		}
		s.jobs[j.ID] = &j
		s.order = append(s.order, j.ID)
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		return s.jobs[s.order[a]].CreatedAt.Before(s.jobs[s.order[b]].CreatedAt)
	})
}

// Dequeue pops the oldest queued job and marks it processing.
func (s *Store) Dequeue() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		j, ok := s.jobs[id]
		if !ok || j.State != StateQueued {
			continue
		}
		now := s.now()
		j.State = StateProcessing
		j.StartedAt = &now
		j.UpdatedAt = now
		j.Progress = Progress{Stage: StageSceneProcessing, TotalScenes: len(j.Scenes)}
		return *j, true
	}
	return Job{}, false
}

func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns every job in creation order.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}

// SetProgress replaces the progress of a processing job. It is a no-op once
// the job has left the processing state.
func (s *Store) SetProgress(id string, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != StateProcessing {
		return
	}
	j.Progress = p
	j.UpdatedAt = s.now()
}

// Transition moves a job to state to, applying fn to it under the lock.
func (s *Store) Transition(id string, to State, fn func(j *Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, video.Wrap(video.ErrNotFound, "", "", fmt.Sprintf("job %s", id), nil)
	}
	if !isValidTransition(j.State, to) {
		return Job{}, video.Wrap(video.ErrConflict, "", "", fmt.Sprintf("job %s cannot move from %s to %s", id, j.State, to), nil)
	}
	now := s.now()
	j.State = to
	j.UpdatedAt = now
	if to.IsTerminal() {
		j.FinishedAt = &now
	}
	if fn != nil {
		fn(j)
	}
	return *j, nil
}

// Remove deletes a queued or terminal job. Processing jobs are rejected.
func (s *Store) Remove(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, video.Wrap(video.ErrNotFound, "", "", fmt.Sprintf("job %s", id), nil)
	}
	if j.State == StateProcessing {
		return Job{}, video.Wrap(video.ErrConflict, "", "", fmt.Sprintf("job %s is processing", id), nil)
	}
	delete(s.jobs, id)
	s.order = without(s.order, id)
	s.queue = without(s.queue, id)
	return *j, nil
}

// QueueLen returns the number of jobs waiting to be processed.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Counts returns the number of jobs per state.
func (s *Store) Counts() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[State]int, len(States))
	for _, st := range States {
		counts[st] = 0
	}
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
