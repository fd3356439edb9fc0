// Package config provides configuration loading and validation for the
// service. Values come from a JSON file, then the environment, with the
// environment winning.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds everything the service needs to run. All fields are optional
// in the file; required values are checked by Validate once merged.
type Config struct {
	// Server
	Port      int    `json:"port,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	// Persistence. DatabaseURL is probed first; the file store is the
	// fallback backend.
	DatabaseURL    string `json:"database_url,omitempty"`
	FileStoreURL   string `json:"filestore_url,omitempty"`
	FileStoreToken string `json:"filestore_token,omitempty"`

	// External services
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty"`
	SearchAPIKey string `json:"search_api_key,omitempty"`
	SearchCX     string `json:"search_cx,omitempty"`

	// Ephemeral is set from the --ephemeral flag. It switches the store to
	// an in-memory backend and drops the persistence requirement.
	Ephemeral bool `json:"-"`
}

// envOverrides maps environment variables onto config fields.
var envOverrides = map[string]func(*Config, string){
	"PORT":            func(c *Config, v string) { c.Port, _ = strconv.Atoi(v) },
	"LOG_LEVEL":       func(c *Config, v string) { c.LogLevel = v },
	"LOG_FORMAT":      func(c *Config, v string) { c.LogFormat = v },
	"DATABASE_URL":    func(c *Config, v string) { c.DatabaseURL = v },
	"FILESTORE_URL":   func(c *Config, v string) { c.FileStoreURL = v },
	"FILESTORE_TOKEN": func(c *Config, v string) { c.FileStoreToken = v },
	"GEMINI_API_KEY":  func(c *Config, v string) { c.GeminiAPIKey = v },
	"OPENAI_API_KEY":  func(c *Config, v string) { c.OpenAIAPIKey = v },
	"SEARCH_API_KEY":  func(c *Config, v string) { c.SearchAPIKey = v },
	"SEARCH_CX":       func(c *Config, v string) { c.SearchCX = v },
}

// Load reads configuration from an optional JSON file and the environment.
// path may be empty; a missing file is only an error when explicitly named.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "json",
	}

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	for key, apply := range envOverrides {
		if v := os.Getenv(key); v != "" {
			apply(cfg, v)
		}
	}
	return cfg, nil
}

// Validate checks that the configuration can actually run the service.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: port %d out of range", c.Port)
	}
	if c.DatabaseURL == "" && c.FileStoreURL == "" && !c.Ephemeral {
		return fmt.Errorf("config error: need at least one of 'database_url' or 'filestore_url'")
	}
	if c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("config error: need an LLM API key ('gemini_api_key' or 'openai_api_key')")
	}
	return nil
}

// LLMAPIKey returns the key for the configured provider, preferring Gemini.
func (c *Config) LLMAPIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}
