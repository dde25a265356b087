// Package jobs owns the short-video job lifecycle: submission, the FIFO
// queue, the background workers and the status store.
package jobs

import (
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// States lists every job state in lifecycle order.
var States = []State{StateQueued, StateProcessing, StateReady, StateFailed}

func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

var validTransitions = map[State][]State{
	StateQueued:     {StateProcessing},
	StateProcessing: {StateReady, StateFailed},
}

func isValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Progress stages reported while a job is processing.
const (
	StageSceneProcessing = "scene-processing"
	StageSelectingMusic  = "selecting-music"
	StageRendering       = "rendering"
	StageSaving          = "saving"
)

type Progress struct {
	Stage       string  `json:"stage,omitempty"`
	Scene       int     `json:"scene"`
	TotalScenes int     `json:"totalScenes"`
	Fraction    float64 `json:"fraction"`
}

// Job is one submitted video. Scenes and Result are never mutated once set,
// so snapshots share them.
type Job struct {
	ID          string              `json:"id"`
	Scenes      []video.SceneInput  `json:"-"`
	Config      video.RenderConfig  `json:"config"`
	State       State               `json:"state"`
	Progress    Progress            `json:"progress"`
	Result      *video.RenderResult `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   string              `json:"errorKind,omitempty"`
	ArtifactKey string              `json:"artifactKey,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
}

// Status is the view of a job returned by status reads.
type Status struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Progress   Progress   `json:"progress"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"errorKind,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (j Job) Status() Status {
	return Status{
		ID:         j.ID,
		State:      j.State,
		Progress:   j.Progress,
		Error:      j.Error,
		ErrorKind:  j.ErrorKind,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Stats summarizes the store for operational endpoints.
type Stats struct {
	Queued      int `json:"queued"`
	Processing  int `json:"processing"`
	Ready       int `json:"ready"`
	Failed      int `json:"failed"`
	Concurrency int `json:"concurrency"`
}
