// Package artifacts stores finished videos keyed by job id.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotExist is returned by Open when no artifact is stored for a job.
var ErrNotExist = errors.New("artifact does not exist")

const (
	videoExt         = ".mp4"
	videoContentType = "video/mp4"
)

// Artifact describes a stored video.
type Artifact struct {
	Key         string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Store persists finished videos. Put takes ownership of srcPath: the file is
// moved or uploaded and no longer exists afterwards. Delete of a missing
// artifact is not an error.
type Store interface {
	Put(ctx context.Context, jobID, srcPath string) (Artifact, error)
	Open(ctx context.Context, jobID string) (io.ReadSeekCloser, Artifact, error)
	Delete(ctx context.Context, jobID string) error
	Type() string
}

// KeyFor returns the object key for a job's video.
func KeyFor(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return jobID + videoExt, nil
}
