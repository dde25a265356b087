// Package config provides configuration management for the shorts service.
// Configuration is loaded from an optional TOML file, then overridden by
// SHORTS_* environment variables, then normalized and validated.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const (
	// Default values
	DefaultPort       = 8787
	DefaultBind       = "127.0.0.1"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "auto"
	DefaultDataDir    = "~/.heimdex-shorts"
	DefaultConfigPath = "~/.config/heimdex-shorts/config.toml"

	// Environment variable names
	EnvPort        = "SHORTS_PORT"
	EnvLogLevel    = "SHORTS_LOG_LEVEL"
	EnvDataDir     = "SHORTS_DATA_DIR"
	EnvPexelsKey   = "SHORTS_PEXELS_API_KEY"
	EnvConcurrency = "SHORTS_CONCURRENCY"

	// Database filename
	DBFilename = "shorts.db"

	// Lock filename guarding a data dir against two servers
	LockFilename = "shorts.lock"

	// Worker defaults
	DefaultConcurrency      = 1
	DefaultSceneConcurrency = 1

	// Footage search defaults
	DefaultPexelsBaseURL          = "https://api.pexels.com"
	DefaultFootageMaxAttempts     = 3
	DefaultFootageBaseDelayMs     = 500
	DefaultFootageMaxDelayMs      = 5000
	DefaultFootageAttemptTimeoutS = 10
	DefaultFootageBufferMs        = 3000

	// Stage timeouts, seconds
	DefaultTTSTimeout      = 120
	DefaultWhisperTimeout  = 300
	DefaultFFmpegTimeout   = 120
	DefaultRendererTimeout = 1800

	ArtifactBackendFS    = "fs"
	ArtifactBackendMinio = "minio"
)

// DefaultFallbackTerms is the generic search pool used when every supplied
// term comes back empty.
var DefaultFallbackTerms = []string{"nature", "globe", "space", "ocean"}

// DefaultRendererCommand renders the bundled composition. {props} and
// {output} are substituted per job.
var DefaultRendererCommand = []string{"npx", "remotion", "render", "src/index.ts", "ShortVideo", "{output}", "--props={props}"}

// Server contains HTTP listener settings.
type Server struct {
	Bind      string `toml:"bind" envconfig:"SHORTS_BIND"`
	Port      int    `toml:"port" envconfig:"SHORTS_PORT"`
	AuthToken string `toml:"auth_token" envconfig:"SHORTS_AUTH_TOKEN"`
}

// Paths contains on-disk locations.
type Paths struct {
	DataDir  string `toml:"data_dir" envconfig:"SHORTS_DATA_DIR"`
	MusicDir string `toml:"music_dir" envconfig:"SHORTS_MUSIC_DIR"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" envconfig:"SHORTS_LOG_LEVEL"`
	Format string `toml:"format" envconfig:"SHORTS_LOG_FORMAT"`
}

// Workers bounds how much work runs at once.
type Workers struct {
	// Concurrency is the maximum number of jobs processing at the same time.
	Concurrency int `toml:"concurrency" envconfig:"SHORTS_CONCURRENCY"`
	// SceneConcurrency is the maximum number of scenes of one job resolved
	// at the same time.
	SceneConcurrency int `toml:"scene_concurrency" envconfig:"SHORTS_SCENE_CONCURRENCY"`
}

// Footage contains stock footage search settings.
type Footage struct {
	PexelsAPIKey          string   `toml:"pexels_api_key" envconfig:"SHORTS_PEXELS_API_KEY"`
	PexelsBaseURL         string   `toml:"pexels_base_url" envconfig:"SHORTS_PEXELS_BASE_URL"`
	FallbackTerms         []string `toml:"fallback_terms" envconfig:"SHORTS_FOOTAGE_FALLBACK_TERMS"`
	MaxAttempts           int      `toml:"max_attempts" envconfig:"SHORTS_FOOTAGE_MAX_ATTEMPTS"`
	BaseDelayMs           int      `toml:"base_delay_ms" envconfig:"SHORTS_FOOTAGE_BASE_DELAY_MS"`
	MaxDelayMs            int      `toml:"max_delay_ms" envconfig:"SHORTS_FOOTAGE_MAX_DELAY_MS"`
	AttemptTimeoutSeconds int      `toml:"attempt_timeout_seconds" envconfig:"SHORTS_FOOTAGE_ATTEMPT_TIMEOUT"`
	DurationBufferMs      int      `toml:"duration_buffer_ms" envconfig:"SHORTS_FOOTAGE_BUFFER_MS"`
}

// TTS contains speech synthesis settings.
type TTS struct {
	BaseURL        string `toml:"base_url" envconfig:"SHORTS_TTS_URL"`
	Model          string `toml:"model" envconfig:"SHORTS_TTS_MODEL"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"SHORTS_TTS_TIMEOUT"`
}

// Whisper contains caption alignment settings.
type Whisper struct {
	Binary         string `toml:"binary" envconfig:"SHORTS_WHISPER_BIN"`
	ModelPath      string `toml:"model_path" envconfig:"SHORTS_WHISPER_MODEL"`
	Language       string `toml:"language" envconfig:"SHORTS_WHISPER_LANGUAGE"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"SHORTS_WHISPER_TIMEOUT"`
}

// FFmpeg contains audio transcoding settings.
type FFmpeg struct {
	Binary         string `toml:"binary" envconfig:"SHORTS_FFMPEG_BIN"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"SHORTS_FFMPEG_TIMEOUT"`
}

// Renderer contains the external video composition command.
type Renderer struct {
	Command []string `toml:"command" envconfig:"SHORTS_RENDERER_COMMAND"`
	// Dir is the composition project the command runs in.
	Dir            string `toml:"dir" envconfig:"SHORTS_RENDERER_DIR"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"SHORTS_RENDERER_TIMEOUT"`
}

// Artifacts selects where finished videos are stored.
type Artifacts struct {
	Backend        string `toml:"backend" envconfig:"SHORTS_ARTIFACTS_BACKEND"`
	MinioEndpoint  string `toml:"minio_endpoint" envconfig:"SHORTS_MINIO_ENDPOINT"`
	MinioBucket    string `toml:"minio_bucket" envconfig:"SHORTS_MINIO_BUCKET"`
	MinioAccessKey string `toml:"minio_access_key" envconfig:"SHORTS_MINIO_ACCESS_KEY"`
	MinioSecretKey string `toml:"minio_secret_key" envconfig:"SHORTS_MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `toml:"minio_use_ssl" envconfig:"SHORTS_MINIO_USE_SSL"`
}

// Config encapsulates all configuration values.
type Config struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	Workers   Workers   `toml:"workers"`
	Footage   Footage   `toml:"footage"`
	TTS       TTS       `toml:"tts"`
	Whisper   Whisper   `toml:"whisper"`
	FFmpeg    FFmpeg    `toml:"ffmpeg"`
	Renderer  Renderer  `toml:"renderer"`
	Artifacts Artifacts `toml:"artifacts"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Server:  Server{Bind: DefaultBind, Port: DefaultPort},
		Paths:   Paths{DataDir: DefaultDataDir},
		Logging: Logging{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Workers: Workers{Concurrency: DefaultConcurrency, SceneConcurrency: DefaultSceneConcurrency},
		Footage: Footage{
			PexelsBaseURL:         DefaultPexelsBaseURL,
			FallbackTerms:         append([]string(nil), DefaultFallbackTerms...),
			MaxAttempts:           DefaultFootageMaxAttempts,
			BaseDelayMs:           DefaultFootageBaseDelayMs,
			MaxDelayMs:            DefaultFootageMaxDelayMs,
			AttemptTimeoutSeconds: DefaultFootageAttemptTimeoutS,
			DurationBufferMs:      DefaultFootageBufferMs,
		},
		TTS:     TTS{BaseURL: "http://127.0.0.1:8880", Model: "kokoro", TimeoutSeconds: DefaultTTSTimeout},
		Whisper: Whisper{Binary: "whisper-cli", Language: "en", TimeoutSeconds: DefaultWhisperTimeout},
		FFmpeg:  FFmpeg{Binary: "ffmpeg", TimeoutSeconds: DefaultFFmpegTimeout},
		Renderer: Renderer{
			Command:        append([]string(nil), DefaultRendererCommand...),
			TimeoutSeconds: DefaultRendererTimeout,
		},
		Artifacts: Artifacts{
			Backend:     ArtifactBackendFS,
			MinioBucket: "shorts",
		},
	}
}

// Load reads the config file at path (or the default location when empty),
// applies environment overrides, then normalizes and validates. It returns
// the resolved file path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Fields without a matching variable are left untouched.
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, "", false, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Workers.Concurrency < 1 {
		problems = append(problems, "workers.concurrency must be at least 1")
	}
	if c.Workers.SceneConcurrency < 1 {
		problems = append(problems, "workers.scene_concurrency must be at least 1")
	}
	if c.Footage.MaxAttempts < 1 {
		problems = append(problems, "footage.max_attempts must be at least 1")
	}
	if c.Footage.BaseDelayMs < 0 || c.Footage.MaxDelayMs < c.Footage.BaseDelayMs {
		problems = append(problems, "footage delays must satisfy 0 <= base_delay_ms <= max_delay_ms")
	}
	if c.Footage.DurationBufferMs < 0 {
		problems = append(problems, "footage.duration_buffer_ms must not be negative")
	}
	if len(c.Footage.FallbackTerms) == 0 {
		problems = append(problems, "footage.fallback_terms must not be empty")
	}
	switch c.Artifacts.Backend {
	case ArtifactBackendFS:
	case ArtifactBackendMinio:
		if c.Artifacts.MinioEndpoint == "" || c.Artifacts.MinioBucket == "" {
			problems = append(problems, "artifacts.minio_endpoint and artifacts.minio_bucket are required for the minio backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("artifacts.backend %q is not one of fs, minio", c.Artifacts.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = DefaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MusicDir) == "" {
		c.Paths.MusicDir = filepath.Join(c.Paths.DataDir, "music")
	}
	if c.Paths.MusicDir, err = expandPath(c.Paths.MusicDir); err != nil {
		return fmt.Errorf("paths.music_dir: %w", err)
	}
	if c.Whisper.ModelPath, err = expandPath(c.Whisper.ModelPath); err != nil {
		return fmt.Errorf("whisper.model_path: %w", err)
	}
	if c.Renderer.Dir, err = expandPath(c.Renderer.Dir); err != nil {
		return fmt.Errorf("renderer.dir: %w", err)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Artifacts.Backend = strings.ToLower(strings.TrimSpace(c.Artifacts.Backend))
	c.TTS.BaseURL = strings.TrimRight(c.TTS.BaseURL, "/")
	c.Footage.PexelsBaseURL = strings.TrimRight(c.Footage.PexelsBaseURL, "/")

	terms := c.Footage.FallbackTerms[:0]
	for _, t := range c.Footage.FallbackTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	c.Footage.FallbackTerms = terms
	return nil
}

// DBPath returns the full path to the SQLite database file
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, DBFilename)
}

// LockPath returns the single-instance lock file path
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, LockFilename)
}

// VideosDir returns where the filesystem artifact backend keeps videos
func (c *Config) VideosDir() string {
	return filepath.Join(c.Paths.DataDir, "videos")
}

// WorkDir returns the scratch directory for in-flight renders
func (c *Config) WorkDir() string {
	return filepath.Join(c.Paths.DataDir, "work")
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func (f Footage) BaseDelay() time.Duration {
	return time.Duration(f.BaseDelayMs) * time.Millisecond
}

func (f Footage) MaxDelay() time.Duration {
	return time.Duration(f.MaxDelayMs) * time.Millisecond
}

func (f Footage) AttemptTimeout() time.Duration {
	return time.Duration(f.AttemptTimeoutSeconds) * time.Second
}

func (t TTS) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (w Whisper) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

func (f FFmpeg) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (r Renderer) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// SampleConfig returns the annotated sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to path, refusing to overwrite
// an existing file.
func WriteSample(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return expanded, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
