// Package remotion renders the final video by invoking an external
// composition command, Remotion by default.
package remotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/pipelines"
	"github.com/heimdex/heimdex-shorts/internal/stages"
	"github.com/heimdex/heimdex-shorts/internal/video"
)

const (
	PlaceholderProps  = "{props}"
	PlaceholderOutput = "{output}"

	propsFilename = "props.json"
)

var progressRe = regexp.MustCompile(`Rendered (\d+)/(\d+)`)

type Config struct {
	// Command is the argv template. {props} and {output} are substituted
	// with the props file and output paths.
	Command []string
	// Dir is the working directory the command runs in, usually the
	// composition project.
	Dir     string
	Timeout time.Duration
}

// Renderer implements stages.VideoRenderer.
type Renderer struct {
	cfg    Config
	runner pipelines.Runner
	logger *slog.Logger
}

func NewRenderer(cfg Config, runner pipelines.Runner, logger *slog.Logger) *Renderer {
	return &Renderer{cfg: cfg, runner: runner, logger: logger}
}

// Render writes the request as a props file next to the output and runs the
// command. Progress lines of the form "Rendered X/Y" are reported as
// fractions; 1.0 is reported once the output exists.
func (r *Renderer) Render(ctx context.Context, req stages.RenderRequest, onProgress func(fraction float64)) (string, error) {
	if len(r.cfg.Command) == 0 {
		return "", video.Wrap(video.ErrRender, "render", "", "renderer command not configured", nil)
	}
	if req.OutputPath == "" {
		return "", video.Wrap(video.ErrRender, "render", "", "output path required", nil)
	}

	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", video.Wrap(video.ErrRender, "render", "mkdir", "", err)
	}

	props, err := json.Marshal(req)
	if err != nil {
		return "", video.Wrap(video.ErrRender, "render", "props", "", err)
	}
	propsPath := filepath.Join(outDir, propsFilename)
	if err := os.WriteFile(propsPath, props, 0o644); err != nil {
		return "", video.Wrap(video.ErrRender, "render", "props", "", err)
	}
	defer os.Remove(propsPath)

	argv := Expand(r.cfg.Command, propsPath, req.OutputPath)

	r.logger.Info("rendering video",
		"job_id", req.JobID,
		"scenes", len(req.Scenes),
		"duration_ms", req.DurationMs,
		"music", req.Music != nil,
	)

	last := -1.0
	report := func(f float64) {
		if onProgress == nil || f <= last {
			return
		}
		last = f
		onProgress(f)
	}

	result := r.runner.Stream(ctx, pipelines.Command{
		Path:    argv[0],
		Args:    argv[1:],
		Dir:     r.cfg.Dir,
		Timeout: r.cfg.Timeout,
	}, func(line string) {
		if f, ok := ParseProgress(line); ok {
			report(f)
		}
	})
	if !result.IsSuccess() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", video.Wrap(video.ErrRender, "render", filepath.Base(argv[0]), "", pipelines.Failure("renderer", result))
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return "", video.Wrap(video.ErrRender, "render", "", "renderer produced no output file", err)
	}

	report(1)
	r.logger.Info("render complete",
		"job_id", req.JobID,
		"bytes", info.Size(),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return req.OutputPath, nil
}

// Expand substitutes placeholders in the argv template. When the template
// has no {output} placeholder the output path is appended.
func Expand(template []string, propsPath, outputPath string) []string {
	argv := make([]string, 0, len(template)+1)
	sawOutput := false
	for _, arg := range template {
		if strings.Contains(arg, PlaceholderOutput) {
			sawOutput = true
		}
		arg = strings.ReplaceAll(arg, PlaceholderProps, propsPath)
		arg = strings.ReplaceAll(arg, PlaceholderOutput, outputPath)
		argv = append(argv, arg)
	}
	if !sawOutput {
		argv = append(argv, outputPath)
	}
	return argv
}

// ParseProgress extracts a completion fraction from a renderer output line.
func ParseProgress(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	done, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || total <= 0 {
		return 0, false
	}
	f := float64(done) / float64(total)
	if f > 1 {
		f = 1
	}
	return f, true
}

func (r *Renderer) String() string {
	return fmt.Sprintf("remotion(%s)", strings.Join(r.cfg.Command, " "))
}
