package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-shorts/internal/api"
	"github.com/heimdex/heimdex-shorts/internal/artifacts"
	"github.com/heimdex/heimdex-shorts/internal/compose"
	"github.com/heimdex/heimdex-shorts/internal/config"
	"github.com/heimdex/heimdex-shorts/internal/db"
	"github.com/heimdex/heimdex-shorts/internal/jobs"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/playback"
	"github.com/heimdex/heimdex-shorts/internal/scenes"
	"github.com/heimdex/heimdex-shorts/internal/stages/ffmpeg"
	"github.com/heimdex/heimdex-shorts/internal/stages/kokoro"
	"github.com/heimdex/heimdex-shorts/internal/stages/pexels"
	"github.com/heimdex/heimdex-shorts/internal/stages/remotion"
	"github.com/heimdex/heimdex-shorts/internal/stages/whisper"
)

const (
	doctorTimeout   = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the video service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	startTime := time.Now()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting shorts server", "version", Version, "data_dir", cfg.Paths.DataDir)

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another shorts server is using %s", cfg.Paths.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(signalCtx, repo, cfg.Server.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	store, err := newArtifactStore(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	runner := pipelines.NewRunner(logger, cfg.Logging.Level == "debug")
	doctor := newDoctor(signalCtx, cfg, logger)

	orch, err := newOrchestrator(cfg, runner, store, repo, logger)
	if err != nil {
		return err
	}
	if err := orch.Load(signalCtx); err != nil {
		return fmt.Errorf("failed to restore jobs: %w", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Addr:           cfg.Addr(),
		Jobs:           orch,
		PlaybackServer: playback.NewServer(logger),
		Settings:       repo,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		Version:        Version,
	})

	printBanner(cfg, authToken, store.Type())

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		return orch.Start(gctx)
	})
	g.Go(func() error {
		return apiServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newOrchestrator(cfg *config.Config, runner pipelines.Runner, store artifacts.Store, repo *jobs.SQLiteRepository, logger *slog.Logger) (*jobs.Orchestrator, error) {
	synth := kokoro.NewClient(cfg.TTS.BaseURL, cfg.TTS.Model, cfg.TTS.Timeout(), logger)
	transcoder := ffmpeg.NewTranscoder(runner, cfg.FFmpeg.Binary, cfg.FFmpeg.Timeout(), logger)
	captioner := whisper.NewCaptioner(whisper.Config{
		Binary:    cfg.Whisper.Binary,
		ModelPath: cfg.Whisper.ModelPath,
		Language:  cfg.Whisper.Language,
		Timeout:   cfg.Whisper.Timeout(),
		TempDir:   cfg.WorkDir(),
	}, runner, logger)

	if cfg.Footage.PexelsAPIKey == "" {
		logger.Warn("no pexels api key configured, footage search will fail")
	}
	finder := scenes.NewFootageFinder(
		pexels.NewClient(cfg.Footage.PexelsBaseURL, cfg.Footage.PexelsAPIKey, logger),
		scenes.FinderConfig{
			FallbackTerms:  cfg.Footage.FallbackTerms,
			MaxAttempts:    cfg.Footage.MaxAttempts,
			BaseDelay:      cfg.Footage.BaseDelay(),
			MaxDelay:       cfg.Footage.MaxDelay(),
			AttemptTimeout: cfg.Footage.AttemptTimeout(),
			BufferMs:       int64(cfg.Footage.DurationBufferMs),
		},
		logger,
	)

	music, err := compose.LoadMusicLibrary(cfg.Paths.MusicDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load music library: %w", err)
	}

	renderer := remotion.NewRenderer(remotion.Config{
		Command: cfg.Renderer.Command,
		Dir:     cfg.Renderer.Dir,
		Timeout: cfg.Renderer.Timeout(),
	}, runner, logger)

	orch, err := jobs.New(jobs.Options{
		Concurrency:      cfg.Workers.Concurrency,
		SceneConcurrency: cfg.Workers.SceneConcurrency,
		Scenes:           scenes.NewPipeline(synth, transcoder, captioner, finder, logger),
		Composer:         compose.NewComposer(renderer, music, cfg.WorkDir(), logger),
		Music:            music,
		Artifacts:        store,
		Index:            repo,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (artifacts.Store, error) {
	if cfg.Artifacts.Backend == config.ArtifactBackendMinio {
		return artifacts.NewMinioStore(ctx, logger,
			artifacts.WithEndpoint(cfg.Artifacts.MinioEndpoint),
			artifacts.WithBucket(cfg.Artifacts.MinioBucket),
			artifacts.WithAccessKey(cfg.Artifacts.MinioAccessKey),
			artifacts.WithSecretKey(cfg.Artifacts.MinioSecretKey),
			artifacts.WithSSL(cfg.Artifacts.MinioUseSSL),
		)
	}
	return artifacts.NewFSStore(cfg.VideosDir(), logger)
}

func newDoctor(ctx context.Context, cfg *config.Config, logger *slog.Logger) *pipelines.CachedDoctor {
	tools := map[string]string{
		pipelines.ToolFFmpeg:  cfg.FFmpeg.Binary,
		pipelines.ToolWhisper: cfg.Whisper.Binary,
	}
	if len(cfg.Renderer.Command) > 0 {
		tools[pipelines.ToolRenderer] = cfg.Renderer.Command[0]
	} else {
		tools[pipelines.ToolRenderer] = ""
	}
	doctor := pipelines.NewCachedDoctor(pipelines.NewExecutableProber(tools, logger), logger)

	probeCtx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else if !caps.Summary.AllOK {
		logger.Warn("some external tools are missing, jobs needing them will fail",
			"ffmpeg", caps.HasFFmpeg,
			"whisper", caps.HasWhisper,
			"renderer", caps.HasRenderer,
		)
	}
	return doctor
}

// ensureAuthToken returns the configured token, or the stored one, creating
// and storing a random token on first start.
func ensureAuthToken(ctx context.Context, settings jobs.SettingsStore, configured string) (string, error) {
	if configured != "" {
		if err := settings.SetSetting(ctx, api.AuthTokenSetting, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	existing, err := settings.GetSetting(ctx, api.AuthTokenSetting)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := settings.SetSetting(ctx, api.AuthTokenSetting, token); err != nil {
		return "", err
	}
	return token, nil
}

func printBanner(cfg *config.Config, token, backend string) {
	fmt.Println()
	fmt.Printf("  heimdex-shorts %s\n", Version)
	fmt.Printf("  API URL:    http://%s\n", cfg.Addr())
	fmt.Printf("  Auth Token: %s\n", token)
	fmt.Printf("  Artifacts:  %s\n", backend)
	fmt.Printf("  Workers:    %d\n", cfg.Workers.Concurrency)
	fmt.Println()
}
