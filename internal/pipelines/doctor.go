package pipelines

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Tool names probed by the doctor.
const (
	ToolFFmpeg   = "ffmpeg"
	ToolWhisper  = "whisper"
	ToolRenderer = "renderer"
)

// Prober reports host capabilities.
type Prober interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// ExecutableProber checks that every configured tool resolves on PATH.
type ExecutableProber struct {
	tools  map[string]string
	logger *slog.Logger
	lookup func(string) (string, error)
}

// NewExecutableProber probes tools, a map from tool name to the configured
// binary name or path.
func NewExecutableProber(tools map[string]string, logger *slog.Logger) *ExecutableProber {
	return &ExecutableProber{tools: tools, logger: logger, lookup: exec.LookPath}
}

func (p *ExecutableProber) RunDoctor(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{Executables: make(map[string]DepInfo, len(p.tools))}

	for name, bin := range p.tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := DepInfo{}
		if bin == "" {
			info.Error = "not configured"
		} else if path, err := p.lookup(bin); err != nil {
			info.Error = err.Error()
		} else {
			info.Available = true
			info.Path = path
			caps.Summary.Available++
		}
		caps.Summary.Total++
		caps.Executables[name] = info
	}
	caps.Summary.AllOK = caps.Summary.Available == caps.Summary.Total

	caps.HasFFmpeg = isAvailable(caps.Executables, ToolFFmpeg)
	caps.HasWhisper = isAvailable(caps.Executables, ToolWhisper)
	caps.HasRenderer = isAvailable(caps.Executables, ToolRenderer)
	caps.ProbedAt = time.Now()

	p.logger.Info("doctor probe complete",
		"ffmpeg", caps.HasFFmpeg,
		"whisper", caps.HasWhisper,
		"renderer", caps.HasRenderer,
		"deps_available", caps.Summary.Available,
		"deps_total", caps.Summary.Total,
	)

	return caps, nil
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

// CachedDoctor wraps a Prober to cache results with a TTL so status requests
// do not walk PATH every time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around doctor probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
