// Package timing reconciles probed clip, voiceover and CTA durations into a
// final video length and a classified pass/warn/fail status.
package timing

import (
	"fmt"
	"math"
	"strings"
)

// Status classifies how well the voice track and clips line up.
type Status string

const (
	StatusOK    Status = "ok"
	StatusInfo  Status = "info"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
)

// WordsPerSecond is the narration rate used for the configured estimate.
const WordsPerSecond = 3.0

// Policy holds the classification thresholds.
type Policy struct {
	// ClipUnit is the configured per-clip duration. Overflow beyond it is an error.
	ClipUnit float64
	// WarnOverflow is the overflow above which the CTA has to stretch.
	WarnOverflow float64
	// InfoUnderflow is the (negative) overflow below which clips run past the voice.
	InfoUnderflow float64
	// TrailingPad is added to every final duration.
	TrailingPad float64
}

// DefaultPolicy returns the stock thresholds for a given clip unit.
func DefaultPolicy(clipUnit float64) Policy {
	return Policy{
		ClipUnit:      clipUnit,
		WarnOverflow:  3,
		InfoUnderflow: -10,
		TrailingPad:   1,
	}
}

// Input is everything Reconcile looks at. Negative or NaN durations are
// treated as zero.
type Input struct {
	Clips       []float64
	Voice       float64
	CtaEnabled  bool
	CtaDuration float64

	// UnknownClips counts clip slots whose probe resolved to unknown.
	UnknownClips int
	// VoiceUnknown is set when the voiceover probe resolved to unknown.
	VoiceUnknown bool
}

// Report is the derived timing summary. It is never persisted.
type Report struct {
	ClipTotal     float64  `json:"clip_total"`
	VoiceTotal    float64  `json:"voice_total"`
	CtaDuration   float64  `json:"cta_duration"`
	FinalDuration float64  `json:"final_duration"`
	Overflow      float64  `json:"overflow"`
	Status        Status   `json:"status"`
	Message       string   `json:"message"`
	Notes         []string `json:"notes,omitempty"`
}

// Reconcile computes the timing report. It is total over its input domain.
func Reconcile(in Input, p Policy) Report {
	var clipTotal float64
	for _, d := range in.Clips {
		clipTotal += nonNeg(d)
	}
	voice := nonNeg(in.Voice)
	var cta float64
	if in.CtaEnabled {
		cta = nonNeg(in.CtaDuration)
	}

	r := Report{
		ClipTotal:     clipTotal,
		VoiceTotal:    voice,
		CtaDuration:   cta,
		FinalDuration: math.Max(voice, clipTotal) + cta + nonNeg(p.TrailingPad),
		Overflow:      voice - clipTotal,
	}
	r.Status, r.Message = classify(r.Overflow, p)

	if in.UnknownClips > 0 {
		noun := "clip"
		if in.UnknownClips > 1 {
			noun = "clips"
		}
		r.Notes = append(r.Notes, fmt.Sprintf("%d %s with unknown duration counted as 0s", in.UnknownClips, noun))
	}
	if in.VoiceUnknown {
		r.Notes = append(r.Notes, "voiceover duration unknown, counted as 0s")
	}
	return r
}

// first matching rule wins
func classify(overflow float64, p Policy) (Status, string) {
	switch {
	case overflow > p.ClipUnit:
		return StatusError, fmt.Sprintf("voice overflows clips by %.1fs, add a clip", overflow)
	case overflow > p.WarnOverflow:
		return StatusWarn, fmt.Sprintf("CTA will stretch ~%.1fs to cover voice", overflow)
	case overflow < p.InfoUnderflow:
		return StatusInfo, fmt.Sprintf("clips extend %.1fs past voice, last frame holds", math.Abs(overflow))
	default:
		return StatusOK, "well matched"
	}
}

// Settings is the configured (non-manual) render plan.
type Settings struct {
	ClipCount    int
	ClipDuration float64
	CtaEnabled   bool
	CtaDuration  float64
	TargetWords  int
}

// Estimate predicts the timing of an automatic run from configuration alone:
// the voice track is assumed to run TargetWords/3 seconds.
func Estimate(s Settings, p Policy) Report {
	clips := make([]float64, 0, s.ClipCount)
	for i := 0; i < s.ClipCount; i++ {
		clips = append(clips, s.ClipDuration)
	}
	return Reconcile(Input{
		Clips:       clips,
		Voice:       float64(s.TargetWords) / WordsPerSecond,
		CtaEnabled:  s.CtaEnabled,
		CtaDuration: s.CtaDuration,
	}, p)
}

// String renders a one-line summary.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (clips %.1fs, voice %.1fs, cta %.1fs, final %.1fs)",
		r.Status, r.Message, r.ClipTotal, r.VoiceTotal, r.CtaDuration, r.FinalDuration)
	for _, n := range r.Notes {
		fmt.Fprintf(&b, "\n  note: %s", n)
	}
	return b.String()
}

func nonNeg(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
