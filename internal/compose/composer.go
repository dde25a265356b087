// Package compose assembles resolved scenes and background music into a
// render request and drives the renderer.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

const (
	DefaultFPS     = 25
	outputFilename = "output.mp4"
)

// Composer stages per-scene audio under a job work directory and renders the
// final video there. The caller moves the output away and calls Cleanup.
type Composer struct {
	renderer stages.VideoRenderer
	music    *MusicLibrary
	workDir  string
	fps      int
	logger   *slog.Logger
}

func NewComposer(renderer stages.VideoRenderer, music *MusicLibrary, workDir string, logger *slog.Logger) *Composer {
	return &Composer{
		renderer: renderer,
		music:    music,
		workDir:  workDir,
		fps:      DefaultFPS,
		logger:   logger,
	}
}

// JobDir returns the scratch directory used for jobID.
func (c *Composer) JobDir(jobID string) string {
	return filepath.Join(c.workDir, jobID)
}

// Render composes scenes, which must already be in ordinal order, with the
// optional music selection. Progress fractions are relayed from the renderer.
// On failure the job directory is removed.
func (c *Composer) Render(
	ctx context.Context,
	jobID string,
	scenes []video.ResolvedScene,
	music *video.MusicSelection,
	cfg video.RenderConfig,
	onProgress func(fraction float64),
) (result video.RenderResult, err error) {
	if len(scenes) == 0 {
		return video.RenderResult{}, video.Wrap(video.ErrRender, "compose", "", "no scenes to render", nil)
	}

	jobDir := c.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return video.RenderResult{}, video.Wrap(video.ErrRender, "compose", "mkdir", "", err)
	}
	defer func() {
		if err != nil {
			c.Cleanup(jobID)
		}
	}()

	width, height := cfg.Orientation.Dimensions()
	req := stages.RenderRequest{
		JobID:                  jobID,
		OutputPath:             filepath.Join(jobDir, outputFilename),
		Width:                  width,
		Height:                 height,
		FPS:                    c.fps,
		PaddingBackMs:          cfg.PaddingBackMs,
		CaptionPosition:        string(cfg.CaptionPosition),
		CaptionBackgroundColor: cfg.CaptionBackgroundColor,
	}

	summaries := make([]video.SceneSummary, 0, len(scenes))
	var offset int64
	for i, scene := range scenes {
		audioPath := filepath.Join(jobDir, fmt.Sprintf("scene-%03d.mp3", i))
		if err := os.WriteFile(audioPath, scene.Audio.Data, 0o644); err != nil {
			return video.RenderResult{}, video.Wrap(video.ErrRender, "compose", "stage audio", "", err)
		}

		req.Scenes = append(req.Scenes, stages.RenderScene{
			AudioPath:  audioPath,
			FootageURL: scene.Footage.URL,
			Captions:   scene.Captions,
			DurationMs: scene.DurationMs,
		})
		summaries = append(summaries, video.SceneSummary{
			Ordinal:    scene.Ordinal,
			FootageID:  scene.Footage.ID,
			StartMs:    offset,
			DurationMs: scene.DurationMs,
			Captions:   shiftCaptions(scene.Captions, offset),
		})
		offset += scene.DurationMs
	}
	req.DurationMs = offset

	var musicID string
	if music != nil && c.music != nil {
		if gain := cfg.MusicVolume.Gain(); gain > 0 {
			req.Music = &stages.RenderMusic{
				Path:    c.music.Path(music.Track),
				StartMs: music.Track.StartMs,
				EndMs:   music.Track.EndMs,
				Loop:    music.Loop,
				Volume:  gain,
			}
			musicID = music.Track.ID
		}
	}

	c.logger.Debug("render request prepared",
		"job_id", jobID,
		"scenes", len(req.Scenes),
		"duration_ms", req.DurationMs,
		"width", width,
		"height", height,
		"music_id", musicID,
	)

	out, err := c.renderer.Render(ctx, req, onProgress)
	if err != nil {
		if video.HasKind(err) || ctx.Err() != nil {
			return video.RenderResult{}, err
		}
		return video.RenderResult{}, video.Wrap(video.ErrRender, "render", "", "", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return video.RenderResult{}, video.Wrap(video.ErrRender, "render", "stat output", "", err)
	}

	return video.RenderResult{
		Path:       out,
		DurationMs: req.DurationMs,
		SizeBytes:  info.Size(),
		Width:      width,
		Height:     height,
		MusicID:    musicID,
		Scenes:     summaries,
		RenderedAt: time.Now().UTC(),
	}, nil
}

// Cleanup removes the job directory and everything left in it.
func (c *Composer) Cleanup(jobID string) {
	if err := os.RemoveAll(c.JobDir(jobID)); err != nil {
		c.logger.Warn("failed to remove job work dir", "job_id", jobID, "error", err)
	}
}

func shiftCaptions(in []video.Caption, offset int64) []video.Caption {
	return lo.Map(in, func(c video.Caption, _ int) video.Caption {
		c.StartMs += offset
		c.EndMs += offset
		return c
	})
}
