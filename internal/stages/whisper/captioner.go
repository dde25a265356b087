// Package whisper aligns narration into word-level captions with the
// whisper.cpp command line tool.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// Config holds the captioner's configuration.
type Config struct {
	Binary    string
	ModelPath string
	Language  string
	Timeout   time.Duration
	// TempDir is where per-call scratch directories are created.
	TempDir string
}

// Captioner implements stages.Captioner.
type Captioner struct {
	cfg    Config
	runner pipelines.Runner
	logger *slog.Logger
}

func NewCaptioner(cfg Config, runner pipelines.Runner, logger *slog.Logger) *Captioner {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Captioner{cfg: cfg, runner: runner, logger: logger}
}

type transcript struct {
	Transcription []segment `json:"transcription"`
}

type segment struct {
	Offsets struct {
		From int64 `json:"from"`
		To   int64 `json:"to"`
	} `json:"offsets"`
	Text string `json:"text"`
}

// Align runs whisper on 16 kHz mono WAV audio and returns one caption per
// word. Failures wrap video.ErrCaption.
func (c *Captioner) Align(ctx context.Context, audio []byte) ([]video.Caption, error) {
	if c.cfg.ModelPath == "" {
		return nil, video.Wrap(video.ErrCaption, "align", "", "whisper model path not configured", nil)
	}

	dir, err := os.MkdirTemp(c.cfg.TempDir, "whisper-*")
	if err != nil {
		return nil, video.Wrap(video.ErrCaption, "align", "create scratch dir", "", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.wav")
	if err := os.WriteFile(input, audio, 0644); err != nil {
		return nil, video.Wrap(video.ErrCaption, "align", "write input", "", err)
	}
	outBase := filepath.Join(dir, "transcript")

	result := c.runner.Run(ctx, pipelines.Command{
		Path: c.cfg.Binary,
		Args: []string{
			"-m", c.cfg.ModelPath,
			"-f", input,
			"-l", c.cfg.Language,
			"--max-len", "1",
			"--split-on-word",
			"--output-json",
			"--output-file", outBase,
			"--no-prints",
		},
		Timeout: c.cfg.Timeout,
	})
	if !result.IsSuccess() {
		return nil, video.Wrap(video.ErrCaption, "align", "whisper", "", pipelines.Failure("whisper", result))
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, video.Wrap(video.ErrCaption, "align", "read transcript", "", err)
	}

	captions, err := ParseTranscript(data)
	if err != nil {
		return nil, video.Wrap(video.ErrCaption, "align", "parse transcript", "", err)
	}
	if len(captions) == 0 {
		return nil, video.Wrap(video.ErrCaption, "align", "", "no speech recognised", nil)
	}

	c.logger.Debug("captions aligned", "tokens", len(captions), "duration_ms", result.Duration.Milliseconds())
	return captions, nil
}

// ParseTranscript converts whisper.cpp JSON output into captions, dropping
// empty tokens and bracketed markers such as [BLANK_AUDIO].
func ParseTranscript(data []byte) ([]video.Caption, error) {
	var t transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("cannot parse whisper JSON: %w", err)
	}

	captions := make([]video.Caption, 0, len(t.Transcription))
	for _, s := range t.Transcription {
		text := strings.TrimSpace(s.Text)
		if text == "" || isMarker(text) {
			continue
		}
		captions = append(captions, video.Caption{
			Text:    text,
			StartMs: s.Offsets.From,
			EndMs:   s.Offsets.To,
		})
	}
	return captions, nil
}

func isMarker(text string) bool {
	return (strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) ||
		(strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"))
}
