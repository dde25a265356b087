package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

type fakeRunner struct {
	calls atomic.Int32
	last  pipelines.Command
	stdin []byte
	runFn func(cmd pipelines.Command) pipelines.RunResult
}

func (f *fakeRunner) Run(ctx context.Context, cmd pipelines.Command) pipelines.RunResult {
	f.calls.Add(1)
	f.last = cmd
	if cmd.Stdin != nil {
		f.stdin, _ = io.ReadAll(cmd.Stdin)
	}
	if f.runFn != nil {
		return f.runFn(cmd)
	}
	return pipelines.RunResult{ExitCode: 0, Stdout: []byte("converted")}
}

func (f *fakeRunner) Stream(ctx context.Context, cmd pipelines.Command, onLine func(string)) pipelines.RunResult {
	return f.Run(ctx, cmd)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize_Args(t *testing.T) {
	runner := &fakeRunner{}
	tc := NewTranscoder(runner, "", 0, testLogger())

	out, err := tc.Normalize(context.Background(), []byte("raw wav"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if string(out) != "converted" {
		t.Errorf("output = %q", out)
	}
	if runner.last.Path != "ffmpeg" {
		t.Errorf("binary = %s, want ffmpeg", runner.last.Path)
	}
	for _, want := range []string{"16000", "pcm_s16le", "pipe:0", "pipe:1"} {
		if !slices.Contains(runner.last.Args, want) {
			t.Errorf("args %v missing %s", runner.last.Args, want)
		}
	}
	if string(runner.stdin) != "raw wav" {
		t.Errorf("stdin = %q", runner.stdin)
	}
}

func TestToDeliveryFormat_Args(t *testing.T) {
	runner := &fakeRunner{}
	tc := NewTranscoder(runner, "/opt/ffmpeg", 0, testLogger())

	if _, err := tc.ToDeliveryFormat(context.Background(), []byte("wav")); err != nil {
		t.Fatalf("ToDeliveryFormat() error = %v", err)
	}
	if !slices.Contains(runner.last.Args, "mp3") || !slices.Contains(runner.last.Args, "libmp3lame") {
		t.Errorf("args = %v, want mp3 output", runner.last.Args)
	}
}

func TestConvert_Failure(t *testing.T) {
	runner := &fakeRunner{runFn: func(cmd pipelines.Command) pipelines.RunResult {
		return pipelines.RunResult{ExitCode: 1, StderrTail: "Invalid data found when processing input"}
	}}
	tc := NewTranscoder(runner, "", 0, testLogger())

	_, err := tc.Normalize(context.Background(), []byte("garbage"))
	if !errors.Is(err, video.ErrAudioProcessing) {
		t.Fatalf("error = %v, want ErrAudioProcessing", err)
	}
}

func TestConvert_EmptyInput(t *testing.T) {
	runner := &fakeRunner{}
	tc := NewTranscoder(runner, "", 0, testLogger())

	if _, err := tc.Normalize(context.Background(), nil); !errors.Is(err, video.ErrAudioProcessing) {
		t.Fatalf("error = %v, want ErrAudioProcessing", err)
	}
	if runner.calls.Load() != 0 {
		t.Error("runner should not be called for empty input")
	}
}
