package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	BlobDir string `toml:"blob_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Workflow contains pipeline scheduling configuration.
type Workflow struct {
	WorkerCount          int `toml:"worker_count"`
	QueuePollInterval    int `toml:"queue_poll_interval"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
	ScheduleSweepSeconds int `toml:"schedule_sweep_seconds"`
}

// Ingestion contains upload and YouTube ingestion limits.
type Ingestion struct {
	MaxUploadBytes   int64    `toml:"max_upload_bytes"`
	AllowedFormats   []string `toml:"allowed_formats"`
	MaxYouTubeHeight int      `toml:"max_youtube_height"`
}

// Provider describes one AI provider endpoint.
type Provider struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// Providers contains AI provider configuration and defaults.
type Providers struct {
	Transcription string   `toml:"transcription"`
	Analysis      string   `toml:"analysis"`
	OpenAI        Provider `toml:"openai"`
	Groq          Provider `toml:"groq"`
	Gemini        Provider `toml:"gemini"`
	TimeoutSecs   int      `toml:"timeout_seconds"`
}

// Platform seeds one social platform target.
type Platform struct {
	Name             string   `toml:"name"`
	Endpoint         string   `toml:"endpoint"`
	AccessToken      string   `toml:"access_token"`
	MaxVideoBytes    int64    `toml:"max_video_bytes"`
	MaxDurationSecs  int      `toml:"max_duration_seconds"`
	SupportedFormats []string `toml:"supported_formats"`
	Active           bool     `toml:"active"`
}

// Dispatcher selects and configures the job dispatch transport.
type Dispatcher struct {
	Mode      string `toml:"mode"`
	AMQPURL   string `toml:"amqp_url"`
	AMQPQueue string `toml:"amqp_queue"`
}

// Notifications contains ntfy push notification configuration.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	VideoReady     bool   `toml:"video_ready"`
	VideoFailed    bool   `toml:"video_failed"`
	PublishDone    bool   `toml:"publish_done"`
	PublishFailed  bool   `toml:"publish_failed"`
}

// Tools contains external binary configuration.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Workflow      Workflow      `toml:"workflow"`
	Ingestion     Ingestion     `toml:"ingestion"`
	Providers     Providers     `toml:"providers"`
	Platforms     []Platform    `toml:"platforms"`
	Dispatcher    Dispatcher    `toml:"dispatcher"`
	Notifications Notifications `toml:"notifications"`
	Tools         Tools         `toml:"tools"`
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "clippress", "config.toml"), nil
}

// Load reads configuration from path (or the default location when empty),
// applies defaults and normalization, and validates the result. The returned
// values are the config, the resolved path, and whether a file existed.
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

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
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
	if strings.TrimSpace(path) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.BlobDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the configured ffmpeg binary or the default lookup name.
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.Tools.FFmpeg); binary != "" {
		return binary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the configured ffprobe binary or the default lookup name.
func (c *Config) FFprobeBinary() string {
	if binary := strings.TrimSpace(c.Tools.FFprobe); binary != "" {
		return binary
	}
	return "ffprobe"
}

// PlatformByName returns the configured platform seed matching name.
func (c *Config) PlatformByName(name string) (Platform, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, platform := range c.Platforms {
		if strings.ToLower(platform.Name) == name {
			return platform, true
		}
	}
	return Platform{}, false
}

func expandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if pathValue == "~" {
			return home, nil
		}
		return filepath.Join(home, pathValue[2:]), nil
	}
	return filepath.Abs(pathValue)
}

// ExpandPath expands ~ and relative segments in a user-supplied path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
