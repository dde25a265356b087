package whisper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"testing"

	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

const sampleTranscript = `{
  "transcription": [
    {"offsets": {"from": 0, "to": 0}, "text": ""},
    {"offsets": {"from": 0, "to": 420}, "text": " Hello"},
    {"offsets": {"from": 420, "to": 910}, "text": " world"},
    {"offsets": {"from": 910, "to": 1200}, "text": " [BLANK_AUDIO]"}
  ]
}`

type fakeRunner struct {
	transcript string
	exitCode   int
	lastArgs   []string
}

func (f *fakeRunner) Run(ctx context.Context, cmd pipelines.Command) pipelines.RunResult {
	f.lastArgs = cmd.Args
	if f.exitCode != 0 {
		return pipelines.RunResult{ExitCode: f.exitCode, StderrTail: "failed to load model"}
	}
	i := slices.Index(cmd.Args, "--output-file")
	os.WriteFile(cmd.Args[i+1]+".json", []byte(f.transcript), 0644)
	return pipelines.RunResult{ExitCode: 0}
}

func (f *fakeRunner) Stream(ctx context.Context, cmd pipelines.Command, onLine func(string)) pipelines.RunResult {
	return f.Run(ctx, cmd)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseTranscript(t *testing.T) {
	captions, err := ParseTranscript([]byte(sampleTranscript))
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	want := []video.Caption{
		{Text: "Hello", StartMs: 0, EndMs: 420},
		{Text: "world", StartMs: 420, EndMs: 910},
	}
	if !slices.Equal(captions, want) {
		t.Errorf("captions = %+v, want %+v", captions, want)
	}
}

func TestAlign_Success(t *testing.T) {
	runner := &fakeRunner{transcript: sampleTranscript}
	c := NewCaptioner(Config{ModelPath: "/models/ggml-base.en.bin", TempDir: t.TempDir()}, runner, testLogger())

	captions, err := c.Align(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(captions) != 2 {
		t.Fatalf("captions = %d, want 2", len(captions))
	}
	if !slices.Contains(runner.lastArgs, "/models/ggml-base.en.bin") || !slices.Contains(runner.lastArgs, "en") {
		t.Errorf("args = %v", runner.lastArgs)
	}
}

func TestAlign_Errors(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		model  string
	}{
		{"no model", &fakeRunner{transcript: sampleTranscript}, ""},
		{"exit code", &fakeRunner{exitCode: 1}, "/m.bin"},
		{"no speech", &fakeRunner{transcript: `{"transcription":[{"offsets":{"from":0,"to":100},"text":"[BLANK_AUDIO]"}]}`}, "/m.bin"},
		{"bad json", &fakeRunner{transcript: `{`}, "/m.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCaptioner(Config{ModelPath: tt.model, TempDir: t.TempDir()}, tt.runner, testLogger())
			if _, err := c.Align(context.Background(), []byte("wav")); !errors.Is(err, video.ErrCaption) {
				t.Errorf("Align() error = %v, want ErrCaption", err)
			}
		})
	}
}
