// Package ffmpeg converts narration audio with the ffmpeg CLI.
package ffmpeg

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// Transcoder implements stages.AudioTranscoder. Audio is piped through
// stdin/stdout so no temporary files are needed.
type Transcoder struct {
	runner  pipelines.Runner
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewTranscoder(runner pipelines.Runner, binary string, timeout time.Duration, logger *slog.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{runner: runner, binary: binary, timeout: timeout, logger: logger}
}

// Normalize converts audio to 16 kHz mono 16-bit PCM WAV, the input format
// expected by the captioner.
func (t *Transcoder) Normalize(ctx context.Context, audio []byte) ([]byte, error) {
	return t.convert(ctx, "normalize", audio,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
	)
}

// ToDeliveryFormat encodes audio as MP3 for the final mux.
func (t *Transcoder) ToDeliveryFormat(ctx context.Context, audio []byte) ([]byte, error) {
	return t.convert(ctx, "deliver", audio,
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
	)
}

func (t *Transcoder) convert(ctx context.Context, op string, audio []byte, outputArgs ...string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, video.Wrap(video.ErrAudioProcessing, op, "", "empty input audio", nil)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	args = append(args, outputArgs...)
	args = append(args, "pipe:1")

	result := t.runner.Run(ctx, pipelines.Command{
		Path:    t.binary,
		Args:    args,
		Stdin:   bytes.NewReader(audio),
		Timeout: t.timeout,
	})
	if !result.IsSuccess() {
		return nil, video.Wrap(video.ErrAudioProcessing, op, "ffmpeg", "", pipelines.Failure("ffmpeg", result))
	}
	if len(result.Stdout) == 0 {
		return nil, video.Wrap(video.ErrAudioProcessing, op, "ffmpeg", "produced no output", nil)
	}

	t.logger.Debug("audio converted", "op", op, "in_bytes", len(audio), "out_bytes", len(result.Stdout), "duration_ms", result.Duration.Milliseconds())
	return result.Stdout, nil
}
