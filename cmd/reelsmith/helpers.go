package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
)

// loadConfig resolves the configuration the same way the daemon does, so CLI
// commands target the right bind address.
func loadConfig(configFlag *string) (*config.Config, error) {
	path := ""
	if configFlag != nil {
		path = *configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// apiGet fetches a JSON payload from the running daemon.
func apiGet(cfg *config.Config, path string, dest any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	url := "http://" + strings.TrimSpace(cfg.Paths.APIBind) + path
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&failure); decodeErr == nil && failure.Error != "" {
			return fmt.Errorf("daemon responded %d: %s", resp.StatusCode, failure.Error)
		}
		return fmt.Errorf("daemon responded %d", resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
