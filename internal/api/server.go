// Package api exposes the job service over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/artifacts"
	"github.com/heimdex/heimdex-shorts/internal/jobs"
	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/playback"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

// AuthTokenSetting is the settings key holding the bearer token.
const AuthTokenSetting = "auth_token"

// JobService is the transport-agnostic surface served by the router.
// *jobs.Orchestrator satisfies it.
type JobService interface {
	Submit(ctx context.Context, scenes []video.SceneInput, cfg video.RenderConfig) (string, error)
	GetStatus(id string) (jobs.Status, error)
	GetResult(id string) (video.RenderResult, error)
	OpenResult(ctx context.Context, id string) (io.ReadSeekCloser, artifacts.Artifact, error)
	ListJobs() []jobs.Status
	Delete(ctx context.Context, id string) error
	Stats() jobs.Stats
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr           string
	Jobs           JobService
	PlaybackServer *playback.Server
	Settings       jobs.SettingsStore
	Doctor         *pipelines.CachedDoctor
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
	// CaptionWords caps words per SRT cue. Zero uses defaultCaptionWords.
	CaptionWords int
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
