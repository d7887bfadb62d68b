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

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	WorkDir      string `toml:"work_dir"`
	MediaDir     string `toml:"media_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	MediaBaseURL string `toml:"media_base_url"`
}

// LLM contains connection settings for the chat-completion service that powers
// dimension generation, research, and script segmentation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains connection settings for the speech synthesis service.
type TTS struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	DefaultVoice string `toml:"default_voice"`
	// Pitch and Volume are passed through to the service when set, in the
	// service's own notation (for example "+2Hz" or "-10%").
	Pitch          string  `toml:"pitch"`
	Volume         string  `toml:"volume"`
	Concurrency    int     `toml:"concurrency"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	TargetLevelDB  float64 `toml:"target_level_db"`
}

// Images contains connection settings for the image synthesis service.
type Images struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	DefaultModel   string `toml:"default_model"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains stage tuning knobs shared across the state machine.
type Pipeline struct {
	ResearchConcurrency   int     `toml:"research_concurrency"`
	RetryMaxAttempts      int     `toml:"retry_max_attempts"`
	RetryBaseDelayMS      int     `toml:"retry_base_delay_ms"`
	ItemTimeoutSeconds    int     `toml:"item_timeout_seconds"`
	HeartbeatSeconds      int     `toml:"heartbeat_seconds"`
	SpeakingCharsPerSec   float64 `toml:"speaking_chars_per_sec"`
	ClipBufferSeconds     float64 `toml:"clip_buffer_seconds"`
	MaxDimensionsDefault  int     `toml:"max_dimensions_default"`
	MaxSegmentsPerProject int     `toml:"max_segments_per_project"`
}

// Compose contains renderer settings.
type Compose struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	FPS           int    `toml:"fps"`
	Transition    string `toml:"transition"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Completion     bool   `toml:"completion"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the daemon.
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Images        Images        `toml:"images"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Compose       Compose       `toml:"compose"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelsmith/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	cfg.applyEnvOverrides()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.MediaDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("REELSMITH_LLM_API_KEY")); v != "" {
		c.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REELSMITH_TTS_API_KEY")); v != "" {
		c.TTS.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REELSMITH_IMAGES_API_KEY")); v != "" {
		c.Images.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REELSMITH_NTFY_TOPIC")); v != "" {
		c.Notifications.NtfyTopic = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	paths := []*string{
		&c.Paths.DataDir,
		&c.Paths.WorkDir,
		&c.Paths.MediaDir,
		&c.Paths.LogDir,
	}
	for _, p := range paths {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	c.Paths.MediaBaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.MediaBaseURL), "/")
	c.Compose.Transition = strings.ToLower(strings.TrimSpace(c.Compose.Transition))
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
