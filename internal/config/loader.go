package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults match the remote pipeline's own render defaults.
const (
	DefaultServerURL    = "http://localhost:8000"
	DefaultClipCount    = 3
	DefaultClipDuration = 10.0
	DefaultCtaDuration  = 5.0
	DefaultTargetWords  = 90
	DefaultRegion       = "auto"
	DefaultFolder       = "manual"
)

// Load reads and parses a configuration file, then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches ./reactor.yaml then ~/.reactor/config.yaml. When
// neither exists it returns a config built from environment and defaults.
func LoadDefault() (*Config, error) {
	candidates := []string{"reactor.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".reactor", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	var cfg Config
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets the environment override secrets and endpoints.
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.URL, "REACTOR_URL")
	set(&cfg.Server.Token, "REACTOR_TOKEN")
	set(&cfg.Database.URL, "REACTOR_DATABASE_URL")
	set(&cfg.Storage.Endpoint, "R2_ENDPOINT")
	set(&cfg.Storage.Bucket, "R2_BUCKET")
	set(&cfg.Storage.PublicURL, "R2_PUBLIC_URL")
	set(&cfg.Storage.AccessKey, "R2_ACCESS_KEY")
	set(&cfg.Storage.SecretKey, "R2_SECRET_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}

	r := &cfg.Render
	if r.ClipCount == 0 {
		r.ClipCount = DefaultClipCount
	}
	if r.ClipDuration == 0 {
		r.ClipDuration = DefaultClipDuration
	}
	if r.CtaDuration == 0 {
		r.CtaDuration = DefaultCtaDuration
	}
	if r.TargetWords == 0 {
		r.TargetWords = DefaultTargetWords
	}

	t := &cfg.Timing
	if t.WarnOverflow == nil {
		t.WarnOverflow = floatPtr(3)
	}
	if t.InfoUnderflow == nil {
		t.InfoUnderflow = floatPtr(-10)
	}
	if t.TrailingPad == nil {
		t.TrailingPad = floatPtr(1)
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultRegion
	}
	if cfg.Storage.Folder == "" {
		cfg.Storage.Folder = DefaultFolder
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
