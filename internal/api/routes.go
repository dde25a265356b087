package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/heimdex/heimdex-shorts/internal/export"
	"github.com/heimdex/heimdex-shorts/internal/playback"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

const (
	defaultCaptionWords = 6
	maxSubmitBodyBytes  = 1 << 20
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Settings, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Route("/api", func(r chi.Router) {
			r.Post("/short-video", submitHandler(cfg))
			r.Get("/short-videos", listVideosHandler(cfg))
			r.Get("/short-video/{id}/status", videoStatusHandler(cfg))
			r.Get("/short-video/{id}/captions.srt", captionsHandler(cfg))
			r.Get("/short-video/{id}", videoHandler(cfg))
			r.Head("/short-video/{id}", videoHandler(cfg))
			r.Delete("/short-video/{id}", deleteVideoHandler(cfg))
			r.Get("/voices", voicesHandler())
			r.Get("/music-tags", musicTagsHandler())
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := cfg.Jobs.Stats()
		resp := StatusResponse{
			Queued:      stats.Queued,
			Processing:  stats.Processing,
			Ready:       stats.Ready,
			Failed:      stats.Failed,
			Concurrency: stats.Concurrency,
			UptimeS:     int64(time.Since(cfg.StartTime).Seconds()),
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Pipelines = &PipelineStatusResponse{
					HasFFmpeg:   caps.HasFFmpeg,
					HasWhisper:  caps.HasWhisper,
					HasRenderer: caps.HasRenderer,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
					DepsAvail:   caps.Summary.Available,
					DepsTotal:   caps.Summary.Total,
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		id, err := cfg.Jobs.Submit(r.Context(), req.Scenes, req.Config)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, SubmitResponse{VideoID: id})
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, StatusesToResponse(cfg.Jobs.ListJobs()))
	}
}

func videoStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := cfg.Jobs.GetStatus(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(status))
	}
}

func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rc, art, err := cfg.Jobs.OpenResult(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer rc.Close()

		err = cfg.PlaybackServer.Serve(w, r, playback.Content{
			Reader:      rc,
			Size:        art.Size,
			ContentType: art.ContentType,
			ModTime:     art.ModTime,
			Filename:    export.DownloadName(id, ".mp4"),
		})
		if err != nil {
			cfg.Logger.Warn("video stream interrupted", "job_id", id, "error", err)
		}
	}
}

func captionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		result, err := cfg.Jobs.GetResult(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		words := cfg.CaptionWords
		if words <= 0 {
			words = defaultCaptionWords
		}

		w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+export.DownloadName(id, ".srt")+"\"")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(export.GenerateSRT(result.Scenes, words)))
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func voicesHandler() http.HandlerFunc {
	voices := lo.Map(video.Voices, func(v video.Voice, _ int) string { return string(v) })
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, VoicesResponse{Voices: voices})
	}
}

func musicTagsHandler() http.HandlerFunc {
	tags := lo.Map(video.Moods, func(m video.MusicMood, _ int) string { return string(m) })
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, MusicTagsResponse{Tags: tags})
	}
}

// writeServiceError maps the job service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *video.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  err.Error(),
			Code:   "VALIDATION_ERROR",
			Fields: verr.Fields,
		})
	case errors.Is(err, video.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, video.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, video.ErrNotReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	case errors.Is(err, video.ErrConflict):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	default:
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
