// Package kokoro synthesizes narration through an OpenAI-compatible speech
// endpoint such as Kokoro-FastAPI.
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

const maxAudioBytes = 64 * 1024 * 1024

// APIError represents a non-2xx response from the speech endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Client implements stages.SpeechSynthesizer.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if model == "" {
		model = "kokoro"
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Synthesize returns WAV audio for text. Failures wrap video.ErrSynthesis.
func (c *Client) Synthesize(ctx context.Context, text string, voice video.Voice) (video.AudioClip, error) {
	body, err := json.Marshal(speechRequest{
		Model:          c.model,
		Input:          text,
		Voice:          string(voice),
		ResponseFormat: "wav",
		Speed:          1.0,
	})
	if err != nil {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "marshal", "", err)
	}

	url := c.baseURL + "/v1/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "create request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "http request", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "", "",
			&APIError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "read body", "", err)
	}
	if len(audio) > maxAudioBytes {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "", fmt.Sprintf("audio exceeds %d bytes", maxAudioBytes), nil)
	}

	duration, err := WAVDuration(audio)
	if err != nil {
		return video.AudioClip{}, video.Wrap(video.ErrSynthesis, "synthesize", "decode wav", "", err)
	}

	c.logger.Debug("speech synthesized",
		"voice", voice,
		"chars", len(text),
		"audio_bytes", len(audio),
		"audio_ms", duration.Milliseconds(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return video.AudioClip{Data: audio, DurationMs: duration.Milliseconds()}, nil
}
