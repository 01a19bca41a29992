package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MaxClipCount bounds render.clip_count; the manual registry holds at most
// this many clips as well.
const MaxClipCount = 6

// Validate checks a Config for structural and semantic errors.
// It returns every error found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if u, err := url.Parse(cfg.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "server.url", Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Server.URL)})
	}

	for _, d := range []struct {
		field string
		value string
	}{
		{"server.timeout", cfg.Server.Timeout},
		{"poll.interval", cfg.Poll.Interval},
		{"poll.error_interval", cfg.Poll.ErrorInterval},
	} {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
		}
	}

	r := cfg.Render
	if r.ClipCount < 1 || r.ClipCount > MaxClipCount {
		errs = append(errs, ValidationError{Field: "render.clip_count", Message: fmt.Sprintf("must be between 1 and %d", MaxClipCount)})
	}
	if r.ClipDuration <= 0 {
		errs = append(errs, ValidationError{Field: "render.clip_duration", Message: "must be positive"})
	}
	if r.CtaDuration < 0 {
		errs = append(errs, ValidationError{Field: "render.cta_duration", Message: "must not be negative"})
	}
	if r.TargetWords < 0 {
		errs = append(errs, ValidationError{Field: "render.target_words", Message: "must not be negative"})
	}

	t := cfg.Timing
	if t.WarnOverflow != nil && *t.WarnOverflow < 0 {
		errs = append(errs, ValidationError{Field: "timing.warn_overflow", Message: "must not be negative"})
	}
	if t.InfoUnderflow != nil && *t.InfoUnderflow > 0 {
		errs = append(errs, ValidationError{Field: "timing.info_underflow", Message: "must not be positive"})
	}
	if t.TrailingPad != nil && *t.TrailingPad < 0 {
		errs = append(errs, ValidationError{Field: "timing.trailing_pad", Message: "must not be negative"})
	}

	s := cfg.Storage
	if s.Bucket != "" {
		if s.Endpoint == "" {
			errs = append(errs, ValidationError{Field: "storage.endpoint", Message: "is required when storage.bucket is set"})
		}
		if s.PublicURL == "" {
			errs = append(errs, ValidationError{Field: "storage.public_url", Message: "is required when storage.bucket is set"})
		}
	}

	return errs
}
