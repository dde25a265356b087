package pipelines

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Runner executes external tools as subprocesses.
type Runner interface {
	// Run executes cmd and buffers its stdout.
	Run(ctx context.Context, cmd Command) RunResult

	// Stream executes cmd and hands every stdout line to onLine as it arrives.
	// Stdout is not retained in the result.
	Stream(ctx context.Context, cmd Command, onLine func(line string)) RunResult
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	logger     *slog.Logger
	debugPaths bool
}

// NewRunner creates a SubprocessRunner. With debugPaths set, full file paths
// appear in logs; otherwise they are shortened.
func NewRunner(logger *slog.Logger, debugPaths bool) *SubprocessRunner {
	return &SubprocessRunner{logger: logger, debugPaths: debugPaths}
}

func (r *SubprocessRunner) Run(ctx context.Context, c Command) RunResult {
	var stdout bytes.Buffer
	result := r.exec(ctx, c, &stdout)
	result.Stdout = stdout.Bytes()
	return result
}

func (r *SubprocessRunner) Stream(ctx context.Context, c Command, onLine func(line string)) RunResult {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanLinesOrCR)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	result := r.exec(ctx, c, pw)
	pw.Close()
	<-done
	return result
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, c Command, stdout io.Writer) RunResult {
	start := time.Now()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	r.logger.Debug("executing command",
		"binary", r.safePath(c.Path),
		"args", len(c.Args),
		"timeout", c.Timeout,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}
	if exitCode == 0 && ctx.Err() != nil {
		exitCode = -1
		stderrBuf.WriteString(ctx.Err().Error())
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.logger.Warn("command failed",
			"binary", filepath.Base(c.Path),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.logger.Debug("command succeeded",
			"binary", filepath.Base(c.Path),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// Failure formats an unsuccessful result as an error.
func Failure(name string, result RunResult) error {
	return fmt.Errorf("%s exited %d: %s", name, result.ExitCode, truncate(strings.TrimSpace(result.StderrTail), 512))
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.debugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// ResolveBinary finds an executable, preferring the configured name or path
// and falling back to the candidates in order.
func ResolveBinary(preferred string, candidates ...string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured binary %q not found", preferred)
	}
	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no binary found on PATH (tried %s)", strings.Join(candidates, ", "))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// scanLinesOrCR splits on \n or \r so carriage-return progress bars produce
// one token per update.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
