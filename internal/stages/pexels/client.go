// Package pexels searches the Pexels stock video API.
package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

const perPage = 80

// APIError represents a non-2xx response from the Pexels API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pexels search failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type searchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	ID         int64       `json:"id"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Duration   int64       `json:"duration"`
	VideoFiles []videoFile `json:"video_files"`
}

type videoFile struct {
	ID       int64  `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

// Client implements stages.FootageSource.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	pick       func(n int) int
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		pick:   rand.IntN,
	}
}

// Search tries q.Terms in order and returns a random qualifying clip from the
// first term that has one.
func (c *Client) Search(ctx context.Context, q stages.FootageQuery) (video.FootageRef, error) {
	if c.apiKey == "" {
		return video.FootageRef{}, fmt.Errorf("pexels api key not configured")
	}

	for _, term := range q.Terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		videos, err := c.search(ctx, term, q.Orientation)
		if err != nil {
			return video.FootageRef{}, err
		}

		candidates := qualifying(videos, q)
		c.logger.Debug("pexels search",
			"term", term,
			"results", len(videos),
			"qualifying", len(candidates),
		)
		if len(candidates) > 0 {
			return candidates[c.pick(len(candidates))], nil
		}
	}

	return video.FootageRef{}, video.Wrap(video.ErrFootageNotFound, "footage", "pexels",
		fmt.Sprintf("no qualifying clip for terms %q", q.Terms), nil)
}

func (c *Client) search(ctx context.Context, term string, orientation video.Orientation) ([]pexelsVideo, error) {
	params := url.Values{}
	params.Set("query", term)
	params.Set("orientation", string(orientation))
	params.Set("size", "medium")
	params.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return result.Videos, nil
}

func qualifying(videos []pexelsVideo, q stages.FootageQuery) []video.FootageRef {
	var out []video.FootageRef
	for _, v := range videos {
		id := strconv.FormatInt(v.ID, 10)
		if q.Excluded(id) {
			continue
		}
		durationMs := v.Duration * 1000
		if durationMs < q.MinDurationMs {
			continue
		}
		file, ok := bestFile(v.VideoFiles, q.MinWidth, q.MinHeight)
		if !ok {
			continue
		}
		out = append(out, video.FootageRef{
			ID:         id,
			URL:        file.Link,
			DurationMs: durationMs,
			Width:      file.Width,
			Height:     file.Height,
		})
	}
	return out
}

// bestFile returns the smallest mp4 rendition meeting the resolution floor.
func bestFile(files []videoFile, minW, minH int) (videoFile, bool) {
	var best videoFile
	found := false
	for _, f := range files {
		if f.FileType != "video/mp4" || f.Link == "" {
			continue
		}
		if f.Width < minW || f.Height < minH {
			continue
		}
		if !found || f.Width*f.Height < best.Width*best.Height {
			best = f
			found = true
		}
	}
	return best, found
}
