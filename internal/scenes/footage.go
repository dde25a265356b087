package scenes

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/heimdex/heimdex-shorts/internal/metrics"
	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// maxReserveConflicts bounds how often a pass is repeated when a concurrent
// scene claims the clip between search and reservation.
const maxReserveConflicts = 10

type FinderConfig struct {
	FallbackTerms  []string
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// BufferMs is added to the requested duration so clips never end early.
	BufferMs int64
}

// FootageFinder picks one clip per scene. It retries transient search
// failures with exponential backoff, falls back to a generic term pool and
// avoids clips already used by other scenes of the same job.
type FootageFinder struct {
	source stages.FootageSource
	cfg    FinderConfig
	logger *slog.Logger
}

func NewFootageFinder(source stages.FootageSource, cfg FinderConfig, logger *slog.Logger) *FootageFinder {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &FootageFinder{source: source, cfg: cfg, logger: logger}
}

type searchPass struct {
	name    string
	terms   []string
	exclude bool
}

// permanentError marks a search failure that no retry or other term can fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Find returns a clip at least durationMs (plus buffer) long and reserves it
// in used. Passes run in order: terms excluding used ids, fallback pool
// excluding used ids, then, only when something was excluded, both again
// without exclusion.
func (f *FootageFinder) Find(ctx context.Context, terms []string, durationMs int64, orientation video.Orientation, used *UsedFootage) (video.FootageRef, error) {
	width, height := orientation.Dimensions()
	base := stages.FootageQuery{
		MinDurationMs: durationMs + f.cfg.BufferMs,
		Orientation:   orientation,
		MinWidth:      width,
		MinHeight:     height,
	}

	passes := []searchPass{
		{name: "terms", terms: terms, exclude: true},
		{name: "fallback", terms: f.cfg.FallbackTerms, exclude: true},
	}
	excludedAny := false
	var lastErr error

	for i := 0; i < len(passes); i++ {
		p := passes[i]
		if len(p.terms) > 0 {
			ref, excluded, err := f.runPass(ctx, base, p, used)
			if err == nil {
				return ref, nil
			}
			excludedAny = excludedAny || excluded

			var perm *permanentError
			switch {
			case ctx.Err() != nil:
				return video.FootageRef{}, ctx.Err()
			case errors.As(err, &perm):
				return video.FootageRef{}, video.Wrap(video.ErrFootageNotFound, "footage", "search", "", perm.err)
			}
			lastErr = err
		}
		if i == 1 && excludedAny {
			passes = append(passes,
				searchPass{name: "terms-reuse", terms: terms},
				searchPass{name: "fallback-reuse", terms: f.cfg.FallbackTerms},
			)
		}
	}

	if errors.Is(lastErr, video.ErrFootageNotFound) {
		return video.FootageRef{}, lastErr
	}
	return video.FootageRef{}, video.Wrap(video.ErrFootageNotFound, "footage", "search", "all passes exhausted", lastErr)
}

// runPass searches one term list. It reports whether any id was excluded.
func (f *FootageFinder) runPass(ctx context.Context, base stages.FootageQuery, p searchPass, used *UsedFootage) (video.FootageRef, bool, error) {
	excluded := false
	for conflict := 0; ; conflict++ {
		q := base
		q.Terms = p.terms
		if p.exclude {
			q.ExcludeIDs = used.Snapshot()
			excluded = excluded || len(q.ExcludeIDs) > 0
		}

		ref, err := f.search(ctx, q)
		if err != nil {
			f.logger.Debug("footage pass failed", "pass", p.name, "terms", p.terms, "error", err)
			return video.FootageRef{}, excluded, err
		}
		if used.Reserve(ref.ID) || !p.exclude {
			f.logger.Debug("footage selected", "pass", p.name, "footage_id", ref.ID, "duration_ms", ref.DurationMs)
			return ref, excluded, nil
		}
		if conflict >= maxReserveConflicts {
			return video.FootageRef{}, true, video.Wrap(video.ErrFootageNotFound, "footage", p.name, "clips claimed by concurrent scenes", nil)
		}
	}
}

func (f *FootageFinder) search(ctx context.Context, q stages.FootageQuery) (video.FootageRef, error) {
	b := retry.NewExponential(f.cfg.BaseDelay)
	b = retry.WithCappedDuration(f.cfg.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(f.cfg.MaxAttempts-1), b)

	var ref video.FootageRef
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		attemptCtx := ctx
		if f.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.AttemptTimeout)
			defer cancel()
		}

		start := time.Now()
		r, err := f.source.Search(attemptCtx, q)
		metrics.ObserveStage("footage", time.Since(start))

		switch {
		case err == nil:
			metrics.IncreaseFootageAttempt(metrics.OutcomeFound)
			ref = r
			return nil
		case errors.Is(err, video.ErrFootageNotFound):
			metrics.IncreaseFootageAttempt(metrics.OutcomeEmpty)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case !isRetryable(err):
			metrics.IncreaseFootageAttempt(metrics.OutcomeFatal)
			return &permanentError{err: err}
		default:
			metrics.IncreaseFootageAttempt(metrics.OutcomeTransient)
			f.logger.Warn("footage search failed, retrying",
				"attempt", attempt,
				"max_attempts", f.cfg.MaxAttempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
	})
	return ref, err
}

// isRetryable treats errors without an opinion (timeouts, connection
// failures) as transient.
func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
