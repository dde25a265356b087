// Package playback streams stored videos over HTTP with byte-range support.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Content is a seekable artifact ready to be served.
type Content struct {
	Reader      io.ReadSeeker
	Size        int64
	ContentType string
	ModTime     time.Time
	// Filename, when set, is sent as an attachment name.
	Filename string
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// Serve writes c to w, answering a Range header with 206 or 416. Errors
// after the headers are sent are returned for logging only.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, c Content) error {
	contentType := c.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	if !c.ModTime.IsZero() {
		h.Set("Last-Modified", c.ModTime.UTC().Format(http.TimeFormat))
	}
	if c.Filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", c.Filename))
	}

	rng, partial, err := ParseRange(r.Header.Get("Range"), c.Size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", c.Size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the full body is sent.
		partial = false
	}

	if !partial {
		h.Set("Content-Length", strconv.FormatInt(c.Size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		if _, err := io.Copy(w, c.Reader); err != nil {
			return fmt.Errorf("copy body: %w", err)
		}
		return nil
	}

	if _, err := c.Reader.Seek(rng.Start, io.SeekStart); err != nil {
		http.Error(w, "seek failed", http.StatusInternalServerError)
		return fmt.Errorf("seek to %d: %w", rng.Start, err)
	}

	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	h.Set("Content-Range", rng.ContentRange(c.Size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, c.Reader, rng.Length()); err != nil {
		return fmt.Errorf("copy range: %w", err)
	}
	s.logger.Debug("served range", "range", rng.ContentRange(c.Size))
	return nil
}
