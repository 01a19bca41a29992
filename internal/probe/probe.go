// Package probe resolves media URLs to playback durations.
package probe

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Result is a probed duration. Known is false when the duration could not
// be determined; Seconds is then 0.
type Result struct {
	Seconds float64 `json:"seconds"`
	Known   bool    `json:"known"`
}

// Unknown is the result of any failed probe.
var Unknown = Result{}

func (r Result) String() string {
	if !r.Known {
		return "unknown"
	}
	return strconv.FormatFloat(r.Seconds, 'f', 1, 64) + "s"
}

// Source looks up a duration. ok is false when the source answered but
// could not tell. Satisfied by *remote.Client.
type Source interface {
	Probe(ctx context.Context, url string) (seconds float64, ok bool, err error)
}

// Prober turns Source lookups into Results and never fails.
type Prober struct {
	src    Source
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a Prober over src.
func New(src Source, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prober{src: src, logger: logger}
}

// Probe returns the duration of url. Concurrent probes of the same URL
// share one lookup.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	v, _, _ := p.group.Do(url, func() (any, error) {
		secs, ok, err := p.src.Probe(ctx, url)
		if err != nil {
			p.logger.Debug("probe failed", "url", url, "error", err)
			return Unknown, nil
		}
		if !ok || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			p.logger.Debug("probe returned no usable duration", "url", url, "seconds", secs, "ok", ok)
			return Unknown, nil
		}
		return Result{Seconds: secs, Known: true}, nil
	})
	return v.(Result)
}
