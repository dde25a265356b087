package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/api"
)

// requestError is a non-2xx answer from the server.
type requestError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *requestError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Response.Code != "" {
		return fmt.Sprintf("server returned HTTP %d (%s): %s", e.StatusCode, e.Response.Code, msg)
	}
	return fmt.Sprintf("server returned HTTP %d: %s", e.StatusCode, msg)
}

// apiClient talks to the HTTP API of a running server.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *apiClient) Submit(ctx context.Context, req api.SubmitRequest) (string, error) {
	var resp api.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/short-video", req, &resp); err != nil {
		return "", err
	}
	return resp.VideoID, nil
}

func (c *apiClient) Status(ctx context.Context, id string) (api.VideoStatusResponse, error) {
	var resp api.VideoStatusResponse
	err := c.do(ctx, http.MethodGet, "/api/short-video/"+url.PathEscape(id)+"/status", nil, &resp)
	return resp, err
}

func (c *apiClient) List(ctx context.Context) ([]api.VideoStatusResponse, error) {
	var resp api.VideosResponse
	if err := c.do(ctx, http.MethodGet, "/api/short-videos", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Videos, nil
}

func (c *apiClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/short-video/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := &requestError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, &rerr.Response)
		return rerr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
