// Package pipelines runs the external media tools (ffmpeg, whisper, the
// video renderer) as subprocesses and probes which of them are installed.
package pipelines

import (
	"io"
	"time"
)

// Capabilities reports which external tools are usable on this host.
type Capabilities struct {
	Executables map[string]DepInfo `json:"executables"`
	Summary     SummaryInfo        `json:"summary"`

	HasFFmpeg   bool      `json:"-"`
	HasWhisper  bool      `json:"-"`
	HasRenderer bool      `json:"-"`
	ProbedAt    time.Time `json:"-"`
}

// DepInfo represents the availability status of a single executable.
type DepInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// Command describes one subprocess invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Stdin   io.Reader
	Timeout time.Duration
}

// RunResult is the structured outcome of executing a subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	Stdout     []byte        `json:"-"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }
