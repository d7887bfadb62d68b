package config

import (
	"errors"
	"fmt"
	"strings"
)

var validTransitions = map[string]struct{}{
	"":         {},
	"fade":     {},
	"wipeleft": {},
	"slideup":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateCompose(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reelsmith/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set REELSMITH_LLM_API_KEY env var or edit %s (create with 'reelsmith config init')", defaultPath)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.TTS.Concurrency < 1 {
		return errors.New("tts.concurrency must be at least 1")
	}
	if c.Images.Concurrency < 1 {
		return errors.New("images.concurrency must be at least 1")
	}
	if c.Pipeline.ResearchConcurrency < 1 {
		return errors.New("pipeline.research_concurrency must be at least 1")
	}
	if c.Pipeline.RetryMaxAttempts < 1 {
		return errors.New("pipeline.retry_max_attempts must be at least 1")
	}
	if c.Pipeline.SpeakingCharsPerSec <= 0 {
		return errors.New("pipeline.speaking_chars_per_sec must be positive")
	}
	if c.Pipeline.ClipBufferSeconds < 0 {
		return errors.New("pipeline.clip_buffer_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateCompose() error {
	if c.Compose.FPS < 1 {
		return errors.New("compose.fps must be at least 1")
	}
	if _, ok := validTransitions[c.Compose.Transition]; !ok {
		return fmt.Errorf("compose.transition: unsupported value %q", c.Compose.Transition)
	}
	return nil
}
