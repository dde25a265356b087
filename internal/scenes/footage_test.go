package scenes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

func TestFind_UsesTermsFirst(t *testing.T) {
	source := &fakeSource{catalog: map[string][]video.FootageRef{
		"cats":   {clip("c1", 10000)},
		"nature": {clip("n1", 10000)},
	}}
	finder := fastFinder(source, "nature")

	ref, err := finder.Find(context.Background(), []string{"cats"}, 4000, video.OrientationPortrait, NewUsedFootage())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if ref.ID != "c1" {
		t.Errorf("id = %s, want c1", ref.ID)
	}

	q := source.recorded()[0]
	if q.MinDurationMs != 7000 {
		t.Errorf("min duration = %d, want 7000 (4000 + buffer)", q.MinDurationMs)
	}
	if q.MinWidth != 1080 || q.MinHeight != 1920 {
		t.Errorf("resolution floor = %dx%d, want 1080x1920", q.MinWidth, q.MinHeight)
	}
}

func TestFind_FallsBackToPool(t *testing.T) {
	source := &fakeSource{catalog: map[string][]video.FootageRef{
		"ocean": {clip("o1", 30000)},
	}}
	finder := fastFinder(source, "nature", "ocean")

	ref, err := finder.Find(context.Background(), []string{"unicorn"}, 1000, video.OrientationLandscape, NewUsedFootage())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if ref.ID != "o1" {
		t.Errorf("id = %s, want o1", ref.ID)
	}
	if got := source.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (not-found is not retried)", got)
	}
}

func TestFind_AllEmpty(t *testing.T) {
	source := &fakeSource{}
	finder := fastFinder(source, "nature")

	_, err := finder.Find(context.Background(), []string{"x"}, 1000, video.OrientationPortrait, NewUsedFootage())
	if !errors.Is(err, video.ErrFootageNotFound) {
		t.Fatalf("error = %v, want ErrFootageNotFound", err)
	}
	if got := source.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (no reuse passes when nothing was excluded)", got)
	}
}

func TestFind_AvoidsUsedFootage(t *testing.T) {
	source := &fakeSource{catalog: map[string][]video.FootageRef{
		"city": {clip("a", 20000), clip("b", 20000)},
	}}
	finder := fastFinder(source)
	used := NewUsedFootage()

	first, err := finder.Find(context.Background(), []string{"city"}, 1000, video.OrientationPortrait, used)
	if err != nil {
		t.Fatalf("first Find() error = %v", err)
	}
	second, err := finder.Find(context.Background(), []string{"city"}, 1000, video.OrientationPortrait, used)
	if err != nil {
		t.Fatalf("second Find() error = %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("both scenes got footage %s", first.ID)
	}
}

func TestFind_ReusesWhenPoolExhausted(t *testing.T) {
	source := &fakeSource{catalog: map[string][]video.FootageRef{
		"city": {clip("only", 20000)},
	}}
	finder := fastFinder(source, "nature")
	used := NewUsedFootage()
	used.Reserve("only")

	ref, err := finder.Find(context.Background(), []string{"city"}, 1000, video.OrientationPortrait, used)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if ref.ID != "only" {
		t.Errorf("id = %s, want reused clip", ref.ID)
	}

	queries := source.recorded()
	last := queries[len(queries)-1]
	if len(last.ExcludeIDs) != 0 {
		t.Errorf("reuse pass excluded %v", last.ExcludeIDs)
	}
}

func TestFind_RetriesTransientFailures(t *testing.T) {
	source := &fakeSource{}
	source.fn = func(q stages.FootageQuery) (video.FootageRef, error) {
		if source.calls.Load() < 3 {
			return video.FootageRef{}, &retryableErr{retry: true}
		}
		return clip("late", 10000), nil
	}
	finder := fastFinder(source)

	ref, err := finder.Find(context.Background(), []string{"x"}, 1000, video.OrientationPortrait, NewUsedFootage())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if ref.ID != "late" {
		t.Errorf("id = %s, want late", ref.ID)
	}
	if got := source.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFind_TransientExhaustion(t *testing.T) {
	source := &fakeSource{fn: func(stages.FootageQuery) (video.FootageRef, error) {
		return video.FootageRef{}, &retryableErr{retry: true}
	}}
	finder := fastFinder(source, "nature")

	_, err := finder.Find(context.Background(), []string{"x"}, 1000, video.OrientationPortrait, NewUsedFootage())
	if !errors.Is(err, video.ErrFootageNotFound) {
		t.Fatalf("error = %v, want ErrFootageNotFound", err)
	}
	if got := source.calls.Load(); got != 6 {
		t.Errorf("calls = %d, want 6 (3 attempts per pass)", got)
	}
}

func TestFind_PermanentFailureStops(t *testing.T) {
	source := &fakeSource{fn: func(stages.FootageQuery) (video.FootageRef, error) {
		return video.FootageRef{}, &retryableErr{retry: false}
	}}
	finder := fastFinder(source, "nature")

	_, err := finder.Find(context.Background(), []string{"x"}, 1000, video.OrientationPortrait, NewUsedFootage())
	if !errors.Is(err, video.ErrFootageNotFound) {
		t.Fatalf("error = %v, want ErrFootageNotFound", err)
	}
	var re *retryableErr
	if !errors.As(err, &re) {
		t.Errorf("error should keep the cause: %v", err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFind_ConcurrentScenesGetDistinctClips(t *testing.T) {
	var refs []video.FootageRef
	for i := 0; i < 8; i++ {
		refs = append(refs, clip(fmt.Sprintf("c%d", i), 20000))
	}
	source := &fakeSource{catalog: map[string][]video.FootageRef{"city": refs}}
	finder := fastFinder(source)
	used := NewUsedFootage()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := finder.Find(context.Background(), []string{"city"}, 1000, video.OrientationPortrait, used)
			if err != nil {
				t.Errorf("Find() error = %v", err)
				return
			}
			results[i] = ref.ID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range results {
		if seen[id] {
			t.Errorf("footage %s assigned twice", id)
		}
		seen[id] = true
	}
}

func TestFind_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{fn: func(stages.FootageQuery) (video.FootageRef, error) {
		cancel()
		return video.FootageRef{}, &retryableErr{retry: true}
	}}
	finder := fastFinder(source, "nature")

	_, err := finder.Find(ctx, []string{"x"}, 1000, video.OrientationPortrait, NewUsedFootage())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestUsedFootage(t *testing.T) {
	u := NewUsedFootage()
	if u.Snapshot() != nil {
		t.Error("empty set should snapshot as nil")
	}
	if !u.Reserve("a") {
		t.Error("first reserve should succeed")
	}
	if u.Reserve("a") {
		t.Error("second reserve should fail")
	}
	snap := u.Snapshot()
	snap["b"] = struct{}{}
	if u.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (snapshot must be a copy)", u.Len())
	}
}
