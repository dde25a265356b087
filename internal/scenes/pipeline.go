// Package scenes resolves a single scene of a job: narration, captions and
// stock footage.
package scenes

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/metrics"
	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// Request is one scene to resolve together with the job-level settings it
// depends on.
type Request struct {
	JobID       string
	Scene       video.SceneInput
	Voice       video.Voice
	Orientation video.Orientation
	// ExtraMs is trailing screen time appended to the scene, the job's end
	// padding for the last scene and zero otherwise.
	ExtraMs int64
	// Used is shared by every scene of the job.
	Used *UsedFootage
}

// Pipeline drives one scene through synthesis, normalization, caption
// alignment and footage search.
type Pipeline struct {
	synth      stages.SpeechSynthesizer
	transcoder stages.AudioTranscoder
	captioner  stages.Captioner
	footage    *FootageFinder
	logger     *slog.Logger
}

func NewPipeline(
	synth stages.SpeechSynthesizer,
	transcoder stages.AudioTranscoder,
	captioner stages.Captioner,
	footage *FootageFinder,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		synth:      synth,
		transcoder: transcoder,
		captioner:  captioner,
		footage:    footage,
		logger:     logger,
	}
}

// Resolve produces the ResolvedScene for req. Errors carry the marker of the
// failing stage.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (video.ResolvedScene, error) {
	logger := logging.WithScene(logging.WithJobID(p.logger, req.JobID), req.Scene.Ordinal)
	if req.Used == nil {
		req.Used = NewUsedFootage()
	}
	start := time.Now()

	var clip video.AudioClip
	err := p.timed("synthesize", func() (err error) {
		clip, err = p.synth.Synthesize(ctx, req.Scene.Text, req.Voice)
		return err
	})
	if err != nil {
		return video.ResolvedScene{}, classify(err, video.ErrSynthesis, "synthesize")
	}
	if len(clip.Data) == 0 || clip.DurationMs <= 0 {
		return video.ResolvedScene{}, video.Wrap(video.ErrSynthesis, "synthesize", "", "engine returned empty audio", nil)
	}

	var normalized []byte
	err = p.timed("normalize", func() (err error) {
		normalized, err = p.transcoder.Normalize(ctx, clip.Data)
		return err
	})
	if err != nil {
		return video.ResolvedScene{}, classify(err, video.ErrAudioProcessing, "normalize")
	}

	var tokens []video.Caption
	err = p.timed("captions", func() (err error) {
		tokens, err = p.captioner.Align(ctx, normalized)
		return err
	})
	if err != nil {
		return video.ResolvedScene{}, classify(err, video.ErrCaption, "captions")
	}
	captions := NormalizeCaptions(tokens, req.Scene.Text, clip.DurationMs)

	var delivery []byte
	err = p.timed("deliver", func() (err error) {
		delivery, err = p.transcoder.ToDeliveryFormat(ctx, clip.Data)
		return err
	})
	if err != nil {
		return video.ResolvedScene{}, classify(err, video.ErrAudioProcessing, "deliver")
	}

	sceneMs := clip.DurationMs + req.ExtraMs
	ref, err := p.footage.Find(ctx, req.Scene.SearchTerms, sceneMs, req.Orientation, req.Used)
	if err != nil {
		return video.ResolvedScene{}, classify(err, video.ErrFootageNotFound, "footage")
	}

	logger.Info("scene resolved",
		"narration_ms", clip.DurationMs,
		"captions", len(captions),
		"footage_id", ref.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return video.ResolvedScene{
		Ordinal:    req.Scene.Ordinal,
		Audio:      video.AudioClip{Data: delivery, DurationMs: clip.DurationMs},
		Captions:   captions,
		Footage:    ref,
		DurationMs: sceneMs,
	}, nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(stage, time.Since(start))
	return err
}

// classify makes sure err carries a taxonomy marker, using the stage's own
// marker when the adapter did not set one. Cancellation passes through.
func classify(err error, marker error, stage string) error {
	if video.HasKind(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return video.Wrap(marker, stage, "", "", err)
}
