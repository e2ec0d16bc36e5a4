package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the optional config file read from the working directory.
const DefaultPath = "headshot.yml"

type Config struct {
	TelegramToken    string `mapstructure:"telegram_bot_token" yaml:"telegram_bot_token,omitempty"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty"`
	GeminiBaseURL    string `mapstructure:"gemini_base_url" yaml:"gemini_base_url"`
	GeminiAPIVersion string `mapstructure:"gemini_api_version" yaml:"gemini_api_version"`
	GeminiModel      string `mapstructure:"gemini_model" yaml:"gemini_model"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
	PreferIPv4 bool   `mapstructure:"prefer_ipv4" yaml:"prefer_ipv4"`

	WebAddr       string `mapstructure:"web_addr" yaml:"web_addr"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	DataDir       string `mapstructure:"data_dir" yaml:"data_dir"`
	DatabasePath  string `mapstructure:"database_path" yaml:"database_path,omitempty"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`

	MaxConcurrent         int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	HTTPTimeoutSeconds    int `mapstructure:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	MediaGroupDebounceMS  int `mapstructure:"media_group_debounce_ms" yaml:"media_group_debounce_ms"`
	SessionIdleMinutes    int `mapstructure:"session_idle_minutes" yaml:"session_idle_minutes"`

	Variants           int `mapstructure:"variants" yaml:"variants"`
	HistoryLimit       int `mapstructure:"history_limit" yaml:"history_limit"`
	ProgressStep       int `mapstructure:"progress_step" yaml:"progress_step"`
	ProgressIntervalMS int `mapstructure:"progress_interval_ms" yaml:"progress_interval_ms"`
	ProgressCap        int `mapstructure:"progress_cap" yaml:"progress_cap"`
}

func Defaults() Config {
	return Config{
		GeminiBaseURL:         "https://generativelanguage.googleapis.com",
		GeminiAPIVersion:      "v1beta",
		GeminiModel:           "gemini-2.5-flash-image",
		LogLevel:              "info",
		PreferIPv4:            true,
		WebAddr:               ":8080",
		PublicBaseURL:         "http://localhost:8080",
		DataDir:               "data",
		NATSURL:               "embedded",
		MaxConcurrent:         4,
		RequestTimeoutSeconds: 180,
		HTTPTimeoutSeconds:    180,
		MediaGroupDebounceMS:  1200,
		SessionIdleMinutes:    7 * 24 * 60,
		Variants:              4,
		HistoryLimit:          6,
		ProgressStep:          10,
		ProgressIntervalMS:    500,
		ProgressCap:           90,
	}
}

// keys lists every setting; each is also read from the upper-cased env var
// of the same name, e.g. GEMINI_API_KEY.
var keys = []string{
	"telegram_bot_token", "gemini_api_key", "gemini_base_url", "gemini_api_version", "gemini_model",
	"log_level", "debug", "prefer_ipv4",
	"web_addr", "public_base_url", "data_dir", "database_path", "nats_url",
	"max_concurrent", "request_timeout_seconds", "http_timeout_seconds", "media_group_debounce_ms", "session_idle_minutes",
	"variants", "history_limit", "progress_step", "progress_interval_ms", "progress_cap",
}

// Load resolves configuration from env vars, then the file at path (if it
// exists), then defaults. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	d := Defaults()
	defaults := map[string]any{
		"gemini_base_url":         d.GeminiBaseURL,
		"gemini_api_version":      d.GeminiAPIVersion,
		"gemini_model":            d.GeminiModel,
		"log_level":               d.LogLevel,
		"debug":                   d.Debug,
		"prefer_ipv4":             d.PreferIPv4,
		"web_addr":                d.WebAddr,
		"public_base_url":         d.PublicBaseURL,
		"data_dir":                d.DataDir,
		"nats_url":                d.NATSURL,
		"max_concurrent":          d.MaxConcurrent,
		"request_timeout_seconds": d.RequestTimeoutSeconds,
		"http_timeout_seconds":    d.HTTPTimeoutSeconds,
		"media_group_debounce_ms": d.MediaGroupDebounceMS,
		"session_idle_minutes":    d.SessionIdleMinutes,
		"variants":                d.Variants,
		"history_limit":           d.HistoryLimit,
		"progress_step":           d.ProgressStep,
		"progress_interval_ms":    d.ProgressIntervalMS,
		"progress_cap":            d.ProgressCap,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return Config{}, fmt.Errorf("binding %s env: %w", k, err)
		}
	}

	if path == "" {
		path = DefaultPath
	}
	if fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	d := Defaults()

	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")

	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = d.HTTPTimeoutSeconds
	}
	if c.Variants < 1 {
		c.Variants = d.Variants
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.ProgressCap <= 0 || c.ProgressCap >= 100 {
		c.ProgressCap = d.ProgressCap
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "headshots.db")
	}
}

// ValidateWeb checks the settings the HTTP service needs.
func (c Config) ValidateWeb() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

// ValidateBot checks the settings the Telegram bot needs.
func (c Config) ValidateBot() error {
	switch {
	case c.TelegramToken == "":
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	case c.GeminiAPIKey == "":
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) MediaGroupDebounce() time.Duration {
	return time.Duration(c.MediaGroupDebounceMS) * time.Millisecond
}

func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) StorageRoot() string {
	return filepath.Join(c.DataDir, "files")
}

// FilesURL is the public prefix stored objects are served under.
func (c Config) FilesURL() string {
	return c.PublicBaseURL + "/files"
}

// Marshal renders cfg as YAML. Secrets are left out.
func Marshal(cfg Config) ([]byte, error) {
	cfg.TelegramToken = ""
	cfg.GeminiAPIKey = ""

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// Write saves cfg as YAML. Secrets are left out.
func Write(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
