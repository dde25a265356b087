package playback

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantOK    bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, false, nil},
		{"full range", "bytes=0-999", 1000, 0, 999, true, nil},
		{"open end", "bytes=500-", 1000, 500, 999, true, nil},
		{"suffix range", "bytes=-500", 1000, 500, 999, true, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, true, nil},
		{"beyond size clamped", "bytes=0-2000", 1000, 0, 999, true, nil},
		{"suffix larger than file", "bytes=-2000", 500, 0, 499, true, nil},
		{"multi range takes first", "bytes=0-99, 200-299", 1000, 0, 99, true, nil},

		{"unsatisfiable start", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"suffix of empty file", "bytes=-10", 0, 0, 0, false, ErrUnsatisfiable},
		{"wrong unit", "chars=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"no dash", "bytes=100", 1000, 0, 0, false, ErrInvalidRange},
		{"invalid start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseRange(tt.header, tt.size)
			if err != tt.wantErr {
				t.Fatalf("ParseRange() error = %v, want %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParseRange() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.Start != tt.wantStart || got.End != tt.wantEnd) {
				t.Errorf("ParseRange() = %d-%d, want %d-%d", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func serve(t *testing.T, method, rangeHeader string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer(slog.New(slog.DiscardHandler))
	req := httptest.NewRequest(method, "/video", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	err := s.Serve(rec, req, Content{
		Reader:      bytes.NewReader(body),
		Size:        int64(len(body)),
		ContentType: "video/mp4",
		Filename:    "short-x.mp4",
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	return rec
}

func TestServe_Full(t *testing.T) {
	rec := serve(t, http.MethodGet, "", []byte("0123456789"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("headers = %v", rec.Header())
	}
	if rec.Header().Get("Content-Disposition") != `inline; filename="short-x.mp4"` {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestServe_Partial(t *testing.T) {
	rec := serve(t, http.MethodGet, "bytes=2-5", []byte("0123456789"))
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "2345" {
		t.Errorf("body = %q, want 2345", body)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Errorf("Content-Length = %q", got)
	}
}

func TestServe_Unsatisfiable(t *testing.T) {
	rec := serve(t, http.MethodGet, "bytes=50-", []byte("0123456789"))
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServe_InvalidRangeServesFull(t *testing.T) {
	rec := serve(t, http.MethodGet, "items=1-2", []byte("abc"))
	if rec.Code != http.StatusOK || rec.Body.String() != "abc" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestServe_Head(t *testing.T) {
	rec := serve(t, http.MethodHead, "", []byte("abc"))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Length") != "3" {
		t.Errorf("Content-Length = %q", rec.Header().Get("Content-Length"))
	}
}
