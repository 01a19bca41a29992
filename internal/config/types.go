package config

import "time"

// Config is the top-level client configuration parsed from YAML.
type Config struct {
	Server   Server   `yaml:"server"`
	Poll     Poll     `yaml:"poll"`
	Render   Render   `yaml:"render"`
	Timing   Timing   `yaml:"timing"`
	Database Database `yaml:"database"`
	Storage  Storage  `yaml:"storage"`
}

// Server locates the remote pipeline API.
type Server struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// Poll tunes the status polling loop.
type Poll struct {
	Interval      string `yaml:"interval"`
	ErrorInterval string `yaml:"error_interval"`
}

// Render mirrors the render settings the remote pipeline runs with; the
// timing reconciler needs them locally.
type Render struct {
	ClipCount    int     `yaml:"clip_count"`
	ClipDuration float64 `yaml:"clip_duration"`
	CtaEnabled   *bool   `yaml:"cta_enabled"`
	CtaDuration  float64 `yaml:"cta_duration"`
	TargetWords  int     `yaml:"target_words"`
}

// Timing holds the reconciliation thresholds in seconds.
type Timing struct {
	WarnOverflow  *float64 `yaml:"warn_overflow"`
	InfoUnderflow *float64 `yaml:"info_underflow"`
	TrailingPad   *float64 `yaml:"trailing_pad"`
}

// Database configures the optional Postgres event log.
type Database struct {
	URL string `yaml:"url"`
}

// Storage configures direct uploads to an S3-compatible bucket (R2).
type Storage struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Folder    string `yaml:"folder"`
}

// Enabled reports whether direct uploads are configured.
func (s Storage) Enabled() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

// CtaOn reports whether the CTA clip is appended. Defaults to true.
func (r Render) CtaOn() bool {
	return r.CtaEnabled == nil || *r.CtaEnabled
}

// RequestTimeout returns the parsed server timeout, falling back to 30s.
func (c *Config) RequestTimeout() time.Duration {
	return parseDurationOr(c.Server.Timeout, 30*time.Second)
}

// PollInterval returns the parsed poll interval, falling back to 2s.
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Poll.Interval, 2*time.Second)
}

// PollErrorInterval returns the back-off interval used after a failed poll.
func (c *Config) PollErrorInterval() time.Duration {
	return parseDurationOr(c.Poll.ErrorInterval, 5*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
