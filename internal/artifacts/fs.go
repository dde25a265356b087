package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore keeps one file per job under a directory.
type FSStore struct {
	dir    string
	logger *slog.Logger
}

func NewFSStore(dir string, logger *slog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create videos dir: %w", err)
	}
	return &FSStore{dir: dir, logger: logger}, nil
}

func (s *FSStore) Type() string {
	return "fs"
}

func (s *FSStore) Put(ctx context.Context, jobID, srcPath string) (Artifact, error) {
	key, err := KeyFor(jobID)
	if err != nil {
		return Artifact{}, err
	}
	dst := filepath.Join(s.dir, key)

	if err := os.Rename(srcPath, dst); err != nil {
		// Rename fails across filesystems; fall back to copying.
		if err := copyFile(ctx, srcPath, dst); err != nil {
			return Artifact{}, fmt.Errorf("store artifact: %w", err)
		}
		_ = os.Remove(srcPath)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	s.logger.Info("artifact stored", "job_id", jobID, "size", info.Size())
	return Artifact{Key: key, Size: info.Size(), ModTime: info.ModTime(), ContentType: videoContentType}, nil
}

func (s *FSStore) Open(ctx context.Context, jobID string) (io.ReadSeekCloser, Artifact, error) {
	key, err := KeyFor(jobID)
	if err != nil {
		return nil, Artifact{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Artifact{}, ErrNotExist
		}
		return nil, Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	return f, Artifact{Key: key, Size: info.Size(), ModTime: info.ModTime(), ContentType: videoContentType}, nil
}

func (s *FSStore) Delete(ctx context.Context, jobID string) error {
	key, err := KeyFor(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
