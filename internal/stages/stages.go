// Package stages declares the capability interfaces the job core drives.
// Concrete engines live in the sub-packages and are swappable.
package stages

import (
	"context"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// SpeechSynthesizer turns narration text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice video.Voice) (video.AudioClip, error)
}

// Captioner aligns normalized narration audio into timed tokens.
type Captioner interface {
	Align(ctx context.Context, audio []byte) ([]video.Caption, error)
}

// FootageQuery is a single stock footage lookup.
type FootageQuery struct {
	// Terms are tried in order; the first term with a qualifying clip wins.
	Terms         []string
	MinDurationMs int64
	Orientation   video.Orientation
	MinWidth      int
	MinHeight     int
	ExcludeIDs    map[string]struct{}
}

// Excluded reports whether id is in the exclusion set.
func (q FootageQuery) Excluded(id string) bool {
	_, ok := q.ExcludeIDs[id]
	return ok
}

// FootageSource finds one qualifying stock clip. It returns an error wrapping
// video.ErrFootageNotFound when no term yields a match.
type FootageSource interface {
	Search(ctx context.Context, q FootageQuery) (video.FootageRef, error)
}

// AudioTranscoder converts narration between the synthesizer output, the
// captioner input and the delivery format used in the final mux.
type AudioTranscoder interface {
	Normalize(ctx context.Context, audio []byte) ([]byte, error)
	ToDeliveryFormat(ctx context.Context, audio []byte) ([]byte, error)
}

// RenderScene is one scene as handed to the renderer.
type RenderScene struct {
	AudioPath  string          `json:"audioPath"`
	FootageURL string          `json:"footageUrl"`
	Captions   []video.Caption `json:"captions"`
	DurationMs int64           `json:"durationMs"`
}

// RenderMusic is the background track as handed to the renderer.
type RenderMusic struct {
	Path    string  `json:"path"`
	StartMs int64   `json:"startMs"`
	EndMs   int64   `json:"endMs"`
	Loop    bool    `json:"loop"`
	Volume  float64 `json:"volume"`
}

// RenderRequest is the full composition description for one video.
type RenderRequest struct {
	JobID                  string        `json:"jobId"`
	OutputPath             string        `json:"-"`
	Width                  int           `json:"width"`
	Height                 int           `json:"height"`
	FPS                    int           `json:"fps"`
	DurationMs             int64         `json:"durationMs"`
	PaddingBackMs          int64         `json:"paddingBackMs"`
	CaptionPosition        string        `json:"captionPosition"`
	CaptionBackgroundColor string        `json:"captionBackgroundColor"`
	Scenes                 []RenderScene `json:"scenes"`
	// Music is nil when the job has no background music or it is muted.
	Music *RenderMusic `json:"music,omitempty"`
}

// VideoRenderer produces the final video file at req.OutputPath, reporting
// completion fractions in [0,1] through onProgress.
type VideoRenderer interface {
	Render(ctx context.Context, req RenderRequest, onProgress func(fraction float64)) (string, error)
}
