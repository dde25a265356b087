package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/heimdex/heimdex-shorts/internal/jobs"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	Queued      int                     `json:"queued"`
	Processing  int                     `json:"processing"`
	Ready       int                     `json:"ready"`
	Failed      int                     `json:"failed"`
	Concurrency int                     `json:"concurrency"`
	UptimeS     int64                   `json:"uptime_s"`
	Pipelines   *PipelineStatusResponse `json:"pipelines,omitempty"`
}

type PipelineStatusResponse struct {
	HasFFmpeg   bool   `json:"has_ffmpeg"`
	HasWhisper  bool   `json:"has_whisper"`
	HasRenderer bool   `json:"has_renderer"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
	DepsAvail   int    `json:"deps_available"`
	DepsTotal   int    `json:"deps_total"`
}

type SubmitRequest struct {
	Scenes []video.SceneInput `json:"scenes"`
	Config video.RenderConfig `json:"config"`
}

type SubmitResponse struct {
	VideoID string `json:"videoId"`
}

type ProgressResponse struct {
	Stage       string  `json:"stage,omitempty"`
	Scene       int     `json:"scene"`
	TotalScenes int     `json:"totalScenes"`
	Fraction    float64 `json:"fraction"`
}

type VideoStatusResponse struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Progress   ProgressResponse `json:"progress"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  string           `json:"errorKind,omitempty"`
	CreatedAt  string           `json:"createdAt"`
	UpdatedAt  string           `json:"updatedAt"`
	FinishedAt string           `json:"finishedAt,omitempty"`
}

type VideosResponse struct {
	Videos []VideoStatusResponse `json:"videos"`
}

type VoicesResponse struct {
	Voices []string `json:"voices"`
}

type MusicTagsResponse struct {
	Tags []string `json:"tags"`
}

type ErrorResponse struct {
	Error  string             `json:"error"`
	Code   string             `json:"code,omitempty"`
	Fields []video.FieldError `json:"fields,omitempty"`
}

func StatusToResponse(s jobs.Status) VideoStatusResponse {
	resp := VideoStatusResponse{
		ID:     s.ID,
		Status: string(s.State),
		Progress: ProgressResponse{
			Stage:       s.Progress.Stage,
			Scene:       s.Progress.Scene,
			TotalScenes: s.Progress.TotalScenes,
			Fraction:    s.Progress.Fraction,
		},
		Error:     s.Error,
		ErrorKind: s.ErrorKind,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
	if s.FinishedAt != nil {
		resp.FinishedAt = s.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func StatusesToResponse(statuses []jobs.Status) VideosResponse {
	return VideosResponse{
		Videos: lo.Map(statuses, func(s jobs.Status, _ int) VideoStatusResponse {
			return StatusToResponse(s)
		}),
	}
}
