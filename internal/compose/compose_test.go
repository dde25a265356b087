package compose

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRenderer struct {
	got stages.RenderRequest
	err error
}

func (f *fakeRenderer) Render(_ context.Context, req stages.RenderRequest, onProgress func(float64)) (string, error) {
	f.got = req
	for _, s := range req.Scenes {
		if _, err := os.Stat(s.AudioPath); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	onProgress(0.5)
	onProgress(1)
	return req.OutputPath, os.WriteFile(req.OutputPath, []byte("0123456789"), 0o644)
}

func testScenes() []video.ResolvedScene {
	return []video.ResolvedScene{
		{
			Ordinal:    0,
			Audio:      video.AudioClip{Data: []byte("a0"), DurationMs: 2000},
			Captions:   []video.Caption{{Text: "one", StartMs: 0, EndMs: 2000}},
			Footage:    video.FootageRef{ID: "f0", URL: "https://cdn/f0.mp4"},
			DurationMs: 2000,
		},
		{
			Ordinal:    1,
			Audio:      video.AudioClip{Data: []byte("a1"), DurationMs: 1000},
			Captions:   []video.Caption{{Text: "two", StartMs: 0, EndMs: 600}, {Text: "three", StartMs: 600, EndMs: 1000}},
			Footage:    video.FootageRef{ID: "f1", URL: "https://cdn/f1.mp4"},
			DurationMs: 1500,
		},
	}
}

func testLibrary(dir string) *MusicLibrary {
	return NewMusicLibrary(dir, []video.MusicTrack{
		{ID: "short-happy", File: "a.mp3", Mood: video.MoodHappy, StartMs: 0, EndMs: 2000},
		{ID: "long-happy", File: "b.mp3", Mood: video.MoodHappy, StartMs: 1000, EndMs: 61000},
		{ID: "mid-sad", File: "c.mp3", Mood: video.MoodSad, StartMs: 0, EndMs: 30000},
	})
}

func TestRender_BuildsRequest(t *testing.T) {
	work := t.TempDir()
	renderer := &fakeRenderer{}
	lib := testLibrary("/music")
	c := NewComposer(renderer, lib, work, testLogger())

	cfg := video.RenderConfig{PaddingBackMs: 500, MusicVolume: video.VolumeLow, Orientation: video.OrientationLandscape}.WithDefaults()
	sel := &video.MusicSelection{Track: lib.Tracks()[1]}

	var progress []float64
	res, err := c.Render(context.Background(), "job1", testScenes(), sel, cfg, func(f float64) { progress = append(progress, f) })
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	req := renderer.got
	if req.Width != 1920 || req.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", req.Width, req.Height)
	}
	if req.DurationMs != 3500 || res.DurationMs != 3500 {
		t.Errorf("duration = %d/%d, want 3500", req.DurationMs, res.DurationMs)
	}
	if req.PaddingBackMs != 500 || req.CaptionPosition != "bottom" || req.CaptionBackgroundColor != "blue" {
		t.Errorf("styling = %+v", req)
	}
	if req.Music == nil || req.Music.Volume != 0.2 || req.Music.Path != filepath.Join("/music", "b.mp3") || req.Music.StartMs != 1000 {
		t.Errorf("music = %+v", req.Music)
	}
	if len(progress) != 2 {
		t.Errorf("progress = %v", progress)
	}

	if res.SizeBytes != 10 || res.MusicID != "long-happy" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Scenes) != 2 {
		t.Fatalf("scenes = %d, want 2", len(res.Scenes))
	}
	second := res.Scenes[1]
	if second.StartMs != 2000 || second.FootageID != "f1" {
		t.Errorf("second scene = %+v", second)
	}
	if second.Captions[1].StartMs != 2600 || second.Captions[1].EndMs != 3000 {
		t.Errorf("captions not shifted: %+v", second.Captions)
	}

	c.Cleanup("job1")
	if _, err := os.Stat(c.JobDir("job1")); !os.IsNotExist(err) {
		t.Error("Cleanup should remove the job dir")
	}
}

func TestRender_MutedOmitsMusic(t *testing.T) {
	renderer := &fakeRenderer{}
	lib := testLibrary("/music")
	c := NewComposer(renderer, lib, t.TempDir(), testLogger())

	cfg := video.RenderConfig{MusicVolume: video.VolumeMuted}.WithDefaults()
	res, err := c.Render(context.Background(), "job", testScenes(), &video.MusicSelection{Track: lib.Tracks()[0]}, cfg, func(float64) {})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if renderer.got.Music != nil {
		t.Errorf("muted render should carry no music, got %+v", renderer.got.Music)
	}
	if res.MusicID != "" {
		t.Errorf("music id = %q, want empty", res.MusicID)
	}
}

func TestRender_FailureCleansUp(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("renderer crashed")}
	c := NewComposer(renderer, nil, t.TempDir(), testLogger())

	_, err := c.Render(context.Background(), "job", testScenes(), nil, video.RenderConfig{}.WithDefaults(), func(float64) {})
	if !errors.Is(err, video.ErrRender) {
		t.Fatalf("error = %v, want ErrRender", err)
	}
	if _, err := os.Stat(c.JobDir("job")); !os.IsNotExist(err) {
		t.Error("job dir should be removed after failure")
	}
}

func TestRender_NoScenes(t *testing.T) {
	c := NewComposer(&fakeRenderer{}, nil, t.TempDir(), testLogger())
	_, err := c.Render(context.Background(), "job", nil, nil, video.RenderConfig{}.WithDefaults(), nil)
	if !errors.Is(err, video.ErrRender) {
		t.Fatalf("error = %v, want ErrRender", err)
	}
}

func TestSelect(t *testing.T) {
	lib := testLibrary("/music")
	first := func(int) int { return 0 }

	tests := []struct {
		name     string
		mood     video.MusicMood
		required int64
		wantID   string
		wantLoop bool
	}{
		{"fits short", video.MoodHappy, 1500, "short-happy", false},
		{"skips too short", video.MoodHappy, 5000, "long-happy", false},
		{"loops longest", video.MoodHappy, 120000, "long-happy", true},
		{"other mood", video.MoodSad, 1000, "mid-sad", false},
		{"mood without tracks uses all", video.MoodDark, 40000, "long-happy", false},
		{"any mood", "", 25000, "long-happy", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := lib.Select(tt.mood, tt.required, first)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if sel.Track.ID != tt.wantID || sel.Loop != tt.wantLoop {
				t.Errorf("Select() = %s loop=%v, want %s loop=%v", sel.Track.ID, sel.Loop, tt.wantID, tt.wantLoop)
			}
		})
	}

	if _, err := NewMusicLibrary("/x", nil).Select("", 1, first); !errors.Is(err, ErrNoMusic) {
		t.Errorf("empty library error = %v, want ErrNoMusic", err)
	}
}

func TestLoadMusicLibrary(t *testing.T) {
	dir := t.TempDir()

	lib, err := LoadMusicLibrary(dir, testLogger())
	if err != nil {
		t.Fatalf("LoadMusicLibrary() missing catalog error = %v", err)
	}
	if len(lib.Tracks()) != 0 {
		t.Errorf("tracks = %d, want 0", len(lib.Tracks()))
	}

	catalog := `[
		{"id":"ok","file":"ok.mp3","mood":"chill","startMs":0,"endMs":10000},
		{"file":"noid.mp3","mood":"sad","startMs":0,"endMs":5000},
		{"id":"badmood","file":"x.mp3","mood":"grumpy","startMs":0,"endMs":10000},
		{"id":"traversal","file":"../x.mp3","mood":"sad","startMs":0,"endMs":10000},
		{"id":"empty","file":"e.mp3","mood":"sad","startMs":500,"endMs":500}
	]`
	if err := os.WriteFile(filepath.Join(dir, CatalogFilename), []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err = LoadMusicLibrary(dir, testLogger())
	if err != nil {
		t.Fatalf("LoadMusicLibrary() error = %v", err)
	}
	tracks := lib.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("tracks = %+v, want 2", tracks)
	}
	if tracks[1].ID != "noid.mp3" {
		t.Errorf("id defaulted to %q, want file name", tracks[1].ID)
	}
	if got := lib.Path(tracks[0]); got != filepath.Join(dir, "ok.mp3") {
		t.Errorf("Path() = %s", got)
	}
	if moods := lib.Moods(); len(moods) != 2 {
		t.Errorf("Moods() = %v", moods)
	}

	if err := os.WriteFile(filepath.Join(dir, CatalogFilename), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMusicLibrary(dir, testLogger()); err == nil {
		t.Error("expected parse error")
	}
}
