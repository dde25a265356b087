package scenes

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSynth struct {
	calls atomic.Int32
	fn    func(text string, voice video.Voice) (video.AudioClip, error)
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, voice video.Voice) (video.AudioClip, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(text, voice)
	}
	return video.AudioClip{Data: []byte("wav:" + text), DurationMs: 2000}, nil
}

type fakeTranscoder struct {
	normalizeErr error
	deliverErr   error
}

func (f *fakeTranscoder) Normalize(_ context.Context, audio []byte) ([]byte, error) {
	if f.normalizeErr != nil {
		return nil, f.normalizeErr
	}
	return append([]byte("norm:"), audio...), nil
}

func (f *fakeTranscoder) ToDeliveryFormat(_ context.Context, audio []byte) ([]byte, error) {
	if f.deliverErr != nil {
		return nil, f.deliverErr
	}
	return append([]byte("mp3:"), audio...), nil
}

type fakeCaptioner struct {
	fn func(audio []byte) ([]video.Caption, error)
}

func (f *fakeCaptioner) Align(_ context.Context, audio []byte) ([]video.Caption, error) {
	if f.fn != nil {
		return f.fn(audio)
	}
	return []video.Caption{{Text: "Hello", StartMs: 0, EndMs: 800}, {Text: "world", StartMs: 800, EndMs: 1700}}, nil
}

// fakeSource serves clips from a per-term catalog and honors exclusion.
type fakeSource struct {
	mu      sync.Mutex
	catalog map[string][]video.FootageRef
	queries []stages.FootageQuery
	calls   atomic.Int32
	fn      func(q stages.FootageQuery) (video.FootageRef, error)
}

func (f *fakeSource) Search(_ context.Context, q stages.FootageQuery) (video.FootageRef, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(q)
	}
	for _, term := range q.Terms {
		for _, ref := range f.catalog[term] {
			if q.Excluded(ref.ID) || ref.DurationMs < q.MinDurationMs {
				continue
			}
			return ref, nil
		}
	}
	return video.FootageRef{}, video.Wrap(video.ErrFootageNotFound, "footage", "fake", "", nil)
}

func (f *fakeSource) recorded() []stages.FootageQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stages.FootageQuery(nil), f.queries...)
}

type retryableErr struct{ retry bool }

func (e *retryableErr) Error() string     { return "upstream failure" }
func (e *retryableErr) IsRetryable() bool { return e.retry }

func clip(id string, ms int64) video.FootageRef {
	return video.FootageRef{ID: id, URL: "https://cdn/" + id + ".mp4", DurationMs: ms, Width: 1080, Height: 1920}
}

func fastFinder(source stages.FootageSource, fallback ...string) *FootageFinder {
	return NewFootageFinder(source, FinderConfig{
		FallbackTerms: fallback,
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BufferMs:      3000,
	}, testLogger())
}
