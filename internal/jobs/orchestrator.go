package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-shorts/internal/artifacts"
	"github.com/heimdex/heimdex-shorts/internal/compose"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/metrics"
	"github.com/heimdex/heimdex-shorts/internal/scenes"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// SceneResolver turns one scene into its resolved artifacts.
type SceneResolver interface {
	Resolve(ctx context.Context, req scenes.Request) (video.ResolvedScene, error)
}

// Composer renders resolved scenes into a video file under a job scratch
// directory and removes that directory on Cleanup.
type Composer interface {
	Render(ctx context.Context, jobID string, resolved []video.ResolvedScene, music *video.MusicSelection,
		cfg video.RenderConfig, onProgress func(fraction float64)) (video.RenderResult, error)
	Cleanup(jobID string)
}

// MusicSelector picks background music for a job.
type MusicSelector interface {
	Select(mood video.MusicMood, requiredMs int64, pick func(n int) int) (video.MusicSelection, error)
}

type Options struct {
	// Concurrency is the number of jobs processed at the same time.
	Concurrency int
	// SceneConcurrency is the number of scenes of one job resolved at the
	// same time.
	SceneConcurrency int

	Scenes    SceneResolver
	Composer  Composer
	Music     MusicSelector
	Artifacts artifacts.Store
	Index     Index
	Logger    *slog.Logger

	NewID func() string
	Pick  func(n int) int
}

// Orchestrator accepts submissions and runs queued jobs on a bounded set of
// workers. Submission and status reads only touch the Store.
type Orchestrator struct {
	store            *Store
	concurrency      int
	sceneConcurrency int
	scenes           SceneResolver
	composer         Composer
	music            MusicSelector
	artifacts        artifacts.Store
	index            Index
	logger           *slog.Logger
	newID            func() string
	pick             func(n int) int

	wake    chan struct{}
	running atomic.Bool
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Scenes == nil || opts.Composer == nil || opts.Artifacts == nil {
		return nil, errors.New("jobs: scenes, composer and artifacts are required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SceneConcurrency < 1 {
		opts.SceneConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}

	return &Orchestrator{
		store:            NewStore(),
		concurrency:      opts.Concurrency,
		sceneConcurrency: opts.SceneConcurrency,
		scenes:           opts.Scenes,
		composer:         opts.Composer,
		music:            opts.Music,
		artifacts:        opts.Artifacts,
		index:            opts.Index,
		logger:           logging.WithComponent(opts.Logger, "jobs"),
		newID:            opts.NewID,
		pick:             opts.Pick,
		wake:             make(chan struct{}, 1),
	}, nil
}

// Load restores terminal jobs from the index.
func (o *Orchestrator) Load(ctx context.Context) error {
	if o.index == nil {
		return nil
	}
	restored, err := o.index.ListTerminalJobs(ctx)
	if err != nil {
		return fmt.Errorf("load job index: %w", err)
	}
	o.store.Restore(restored)
	o.updateStateMetrics()
	o.logger.Info("job index loaded", "jobs", len(restored))
	return nil
}

// Start runs the workers until ctx is cancelled. Jobs submitted before Start
// wait in the queue.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running.Swap(true) {
		return errors.New("jobs: orchestrator already running")
	}
	defer o.running.Store(false)

	o.logger.Info("job workers started", "concurrency", o.concurrency, "scene_concurrency", o.sceneConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.concurrency; i++ {
		worker := i
		g.Go(func() error {
			return o.work(gctx, worker)
		})
	}
	o.signal()

	err := g.Wait()
	o.logger.Info("job workers stopped")
	return err
}

func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) work(ctx context.Context, worker int) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, ok := o.store.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-o.wake:
				continue
			}
		}
		if o.store.QueueLen() > 0 {
			o.signal()
		}
		o.process(ctx, worker, job)
	}
}

// Submit validates and enqueues a job and returns its id without waiting.
func (o *Orchestrator) Submit(ctx context.Context, input []video.SceneInput, cfg video.RenderConfig) (string, error) {
	if err := video.ValidateSubmission(input, cfg); err != nil {
		return "", err
	}

	sceneList := make([]video.SceneInput, len(input))
	for i, s := range input {
		s.Ordinal = i
		s.SearchTerms = append([]string(nil), s.SearchTerms...)
		sceneList[i] = s
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        o.newID(),
		Scenes:    sceneList,
		Config:    cfg.WithDefaults(),
		State:     StateQueued,
		Progress:  Progress{TotalScenes: len(sceneList)},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.store.Add(job)
	snapshot, _ := o.store.Get(job.ID)
	o.persist(ctx, snapshot)

	metrics.IncreaseJobsSubmitted()
	o.updateStateMetrics()
	o.logger.Info("job submitted", "job_id", job.ID, "scenes", len(sceneList), "queue", o.store.QueueLen())

	o.signal()
	return job.ID, nil
}

func (o *Orchestrator) GetStatus(id string) (Status, error) {
	j, ok := o.store.Get(id)
	if !ok {
		return Status{}, notFound(id)
	}
	return j.Status(), nil
}

// GetJob returns a full snapshot of a job.
func (o *Orchestrator) GetJob(id string) (Job, error) {
	j, ok := o.store.Get(id)
	if !ok {
		return Job{}, notFound(id)
	}
	return j, nil
}

// GetResult returns the render result of a ready job.
func (o *Orchestrator) GetResult(id string) (video.RenderResult, error) {
	j, ok := o.store.Get(id)
	if !ok {
		return video.RenderResult{}, notFound(id)
	}
	if j.State != StateReady || j.Result == nil {
		return video.RenderResult{}, video.Wrap(video.ErrNotReady, "", "", fmt.Sprintf("job %s is %s", id, j.State), nil)
	}
	return *j.Result, nil
}

// OpenResult opens the stored video of a ready job.
func (o *Orchestrator) OpenResult(ctx context.Context, id string) (io.ReadSeekCloser, artifacts.Artifact, error) {
	if _, err := o.GetResult(id); err != nil {
		return nil, artifacts.Artifact{}, err
	}
	rc, art, err := o.artifacts.Open(ctx, id)
	if errors.Is(err, artifacts.ErrNotExist) {
		return nil, artifacts.Artifact{}, video.Wrap(video.ErrNotFound, "", "", fmt.Sprintf("artifact of job %s", id), err)
	}
	return rc, art, err
}

// ListJobs returns every job in submission order.
func (o *Orchestrator) ListJobs() []Status {
	all := o.store.List()
	out := make([]Status, len(all))
	for i, j := range all {
		out[i] = j.Status()
	}
	return out
}

// Delete removes a queued or terminal job and its artifact. Processing jobs
// are rejected with a conflict.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	j, ok := o.store.Get(id)
	if !ok {
		return notFound(id)
	}
	if j.State == StateProcessing {
		return video.Wrap(video.ErrConflict, "", "", fmt.Sprintf("job %s is processing", id), nil)
	}
	if j.State == StateReady {
		if err := o.artifacts.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete artifact of job %s: %w", id, err)
		}
	}
	if _, err := o.store.Remove(id); err != nil {
		return err
	}
	if o.index != nil {
		if err := o.index.DeleteJob(ctx, id); err != nil {
			o.logger.Warn("failed to delete job from index", "job_id", id, "error", err)
		}
	}
	o.updateStateMetrics()
	o.logger.Info("job deleted", "job_id", id, "state", j.State)
	return nil
}

func (o *Orchestrator) Stats() Stats {
	c := o.store.Counts()
	return Stats{
		Queued:      c[StateQueued],
		Processing:  c[StateProcessing],
		Ready:       c[StateReady],
		Failed:      c[StateFailed],
		Concurrency: o.concurrency,
	}
}

func (o *Orchestrator) process(ctx context.Context, worker int, job Job) {
	logger := logging.WithJobID(o.logger, job.ID).With("worker", worker)
	start := time.Now()

	o.persist(ctx, job)
	o.updateStateMetrics()
	logger.Info("job processing", "state", job.State, "scenes", len(job.Scenes))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			o.fail(ctx, logger, job.ID, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err := o.run(ctx, logger, job)
	if err != nil {
		o.fail(ctx, logger, job.ID, err)
		return
	}

	done, err := o.store.Transition(job.ID, StateReady, func(j *Job) {
		j.Result = &result
		j.ArtifactKey = result.Path
		j.Progress = Progress{Stage: StageSaving, Scene: len(job.Scenes), TotalScenes: len(job.Scenes), Fraction: 1}
	})
	if err != nil {
		logger.Error("failed to mark job ready", "error", err)
		return
	}
	o.persist(ctx, done)
	metrics.IncreaseJobsFinished(string(StateReady))
	metrics.ObserveStage("job", time.Since(start))
	o.updateStateMetrics()
	logger.Info("job ready",
		"state", done.State,
		"duration_ms", result.DurationMs,
		"size_bytes", result.SizeBytes,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job Job) (video.RenderResult, error) {
	total := len(job.Scenes)

	stageStart := time.Now()
	resolved, err := o.resolveScenes(ctx, job)
	if err != nil {
		return video.RenderResult{}, err
	}
	metrics.ObserveStage("scenes", time.Since(stageStart))

	o.store.SetProgress(job.ID, Progress{Stage: StageSelectingMusic, Scene: total, TotalScenes: total})
	music := o.selectMusic(logger, job, resolved)

	o.store.SetProgress(job.ID, Progress{Stage: StageRendering, Scene: total, TotalScenes: total})
	stageStart = time.Now()
	result, err := o.composer.Render(ctx, job.ID, resolved, music, job.Config, func(f float64) {
		o.store.SetProgress(job.ID, Progress{Stage: StageRendering, Scene: total, TotalScenes: total, Fraction: f})
	})
	if err != nil {
		return video.RenderResult{}, err
	}
	defer o.composer.Cleanup(job.ID)
	metrics.ObserveStage("render", time.Since(stageStart))

	o.store.SetProgress(job.ID, Progress{Stage: StageSaving, Scene: total, TotalScenes: total})
	stageStart = time.Now()
	art, err := o.artifacts.Put(ctx, job.ID, result.Path)
	if err != nil {
		return video.RenderResult{}, video.Wrap(video.ErrRender, "save", o.artifacts.Type(), "", err)
	}
	metrics.ObserveStage("save", time.Since(stageStart))

	result.Path = art.Key
	result.SizeBytes = art.Size
	return result, nil
}

// resolveScenes runs the scene pipeline for every scene on a pool bounded by
// the scene concurrency. Results are ordered by ordinal. The first failure
// cancels the remaining scenes.
func (o *Orchestrator) resolveScenes(ctx context.Context, job Job) ([]video.ResolvedScene, error) {
	total := len(job.Scenes)
	pool, err := ants.NewPool(min(o.sceneConcurrency, total), ants.WithPanicHandler(func(p any) {
		o.logger.Error("scene worker panicked", "job_id", job.ID, "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create scene pool: %w", err)
	}
	defer pool.Release()

	sceneCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed atomic.Int32
	)
	resolved := make([]video.ResolvedScene, total)
	used := scenes.NewUsedFootage()
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for i, scene := range job.Scenes {
		if sceneCtx.Err() != nil {
			break
		}
		req := scenes.Request{
			JobID:       job.ID,
			Scene:       scene,
			Voice:       job.Config.Voice,
			Orientation: job.Config.Orientation,
			Used:        used,
		}
		if i == total-1 {
			req.ExtraMs = job.Config.PaddingBackMs
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					setErr(fmt.Errorf("scene %d: internal error: %v", req.Scene.Ordinal, r))
				}
			}()
			if sceneCtx.Err() != nil {
				return
			}

			res, err := o.scenes.Resolve(sceneCtx, req)
			if err != nil {
				setErr(fmt.Errorf("scene %d: %w", req.Scene.Ordinal, err))
				return
			}
			resolved[i] = res
			n := int(completed.Add(1))
			o.store.SetProgress(job.ID, Progress{
				Stage:       StageSceneProcessing,
				Scene:       n,
				TotalScenes: total,
				Fraction:    float64(n) / float64(total),
			})
		})
		if submitErr != nil {
			wg.Done()
			setErr(fmt.Errorf("submit scene %d: %w", i, submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// selectMusic returns nil when music is muted, unconfigured or unavailable.
func (o *Orchestrator) selectMusic(logger *slog.Logger, job Job, resolved []video.ResolvedScene) *video.MusicSelection {
	if o.music == nil || job.Config.MusicVolume.Gain() == 0 {
		return nil
	}
	var required int64
	for _, s := range resolved {
		required += s.DurationMs
	}
	sel, err := o.music.Select(job.Config.Music, required, o.pick)
	if err != nil {
		if !errors.Is(err, compose.ErrNoMusic) {
			logger.Warn("music selection failed, rendering without music", "error", err)
		}
		return nil
	}
	logger.Debug("music selected", "track", sel.Track.ID, "loop", sel.Loop, "required_ms", required)
	return &sel
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id string, cause error) {
	kind := video.Kind(cause)
	failed, err := o.store.Transition(id, StateFailed, func(j *Job) {
		j.Error = cause.Error()
		j.ErrorKind = kind
	})
	if err != nil {
		logger.Error("failed to mark job failed", "error", err, "cause", cause)
		return
	}
	o.composer.Cleanup(id)
	o.persist(ctx, failed)
	metrics.IncreaseJobsFinished(string(StateFailed))
	o.updateStateMetrics()
	logger.Error("job failed", "state", failed.State, "stage", failed.Progress.Stage, "error_kind", kind, "error", cause)
}

// persist writes a job to the index. Failures are logged; the in-memory
// store remains the source of truth.
func (o *Orchestrator) persist(ctx context.Context, j Job) {
	if o.index == nil {
		return
	}
	// Writes outlive a cancelled worker context so final states are kept.
	if err := o.index.SaveJob(context.WithoutCancel(ctx), j); err != nil {
		o.logger.Warn("failed to persist job", "job_id", j.ID, "state", j.State, "error", err)
	}
}

func (o *Orchestrator) updateStateMetrics() {
	counts := o.store.Counts()
	byName := make(map[string]int, len(counts))
	for st, n := range counts {
		byName[string(st)] = n
	}
	metrics.UpdateJobsInState(byName)
}

func notFound(id string) error {
	return video.Wrap(video.ErrNotFound, "", "", fmt.Sprintf("job %s", id), nil)
}
