// Package manual holds the user-supplied assets of a manual run and keeps
// their timing report current as URLs change and probes resolve.
package manual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/probe"
	"github.com/lucasnoah/reactorctl/internal/timing"
)

const (
	// InitialSlots is the number of clip slots a fresh registry starts with.
	InitialSlots = 3
	// MaxSlots bounds the clip list.
	MaxSlots = 6
)

var (
	ErrTooManySlots = fmt.Errorf("at most %d clip slots", MaxSlots)
	ErrLastSlot     = errors.New("at least one clip slot is required")
	ErrNoClips      = errors.New("no clip URLs set")
	ErrSlotIndex    = errors.New("clip slot out of range")
)

// Prober resolves durations. Satisfied by *probe.Prober.
type Prober interface {
	Probe(ctx context.Context, url string) probe.Result
}

// Kind identifies which slot a value belongs to.
type Kind string

const (
	KindClip      Kind = "clip"
	KindVoiceover Kind = "voiceover"
	KindCta       Kind = "cta"
)

// Slot is one asset slot. Duration is Unknown until probed; Pending is set
// while a probe for the current URL is outstanding.
type Slot struct {
	ID       int          `json:"id"`
	Kind     Kind         `json:"kind"`
	URL      string       `json:"url,omitempty"`
	Duration probe.Result `json:"duration"`
	Pending  bool         `json:"pending"`
}

// Resolved reports whether the URL is usable downstream.
func (s Slot) Resolved() bool {
	return validURL(s.URL)
}

// Seconds is the duration the slot contributes to timing.
func (s Slot) Seconds() float64 {
	if s.Pending {
		return 0
	}
	return s.Duration.Seconds
}

func (s Slot) unknown() bool {
	return s.Resolved() && !s.Pending && !s.Duration.Known
}

// Settings are the render settings that feed the timing report.
type Settings struct {
	CtaEnabled  bool
	CtaDuration float64
	Policy      timing.Policy
}

// View is a consistent copy of the registry and its report.
type View struct {
	Clips     []Slot        `json:"clips"`
	Voiceover Slot          `json:"voiceover"`
	Cta       Slot          `json:"cta"`
	Report    timing.Report `json:"report"`
}

// Registry is the manual asset registry. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	clips     []Slot
	voiceover Slot
	cta       Slot
	nextID    int
	report    timing.Report

	settings Settings
	prober   Prober
	onChange func(View)
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithOnChange registers a callback run after every mutation and every
// probe resolution. It is called without the registry lock held.
func WithOnChange(fn func(View)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry with InitialSlots empty clip slots.
func New(prober Prober, settings Settings, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		settings: settings,
		prober:   prober,
		logger:   slog.New(slog.DiscardHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.voiceover = r.newSlot(KindVoiceover)
	r.cta = r.newSlot(KindCta)
	for i := 0; i < InitialSlots; i++ {
		r.clips = append(r.clips, r.newSlot(KindClip))
	}
	r.recompute()
	return r
}

func (r *Registry) newSlot(kind Kind) Slot {
	r.nextID++
	return Slot{ID: r.nextID, Kind: kind}
}

// SetClipURL sets the URL of clip slot i and schedules a probe.
func (r *Registry) SetClipURL(i int, rawURL string) error {
	r.mu.Lock()
	if i < 0 || i >= len(r.clips) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d (have %d)", ErrSlotIndex, i, len(r.clips))
	}
	dispatch := r.setURL(&r.clips[i], rawURL)
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
	dispatch()
	return nil
}

// SetVoiceoverURL sets the voiceover URL and schedules a probe.
func (r *Registry) SetVoiceoverURL(rawURL string) {
	r.mu.Lock()
	dispatch := r.setURL(&r.voiceover, rawURL)
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
	dispatch()
}

// SetCtaURL sets the CTA clip URL and schedules a probe.
func (r *Registry) SetCtaURL(rawURL string) {
	r.mu.Lock()
	dispatch := r.setURL(&r.cta, rawURL)
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
	dispatch()
}

// AddSlot appends an empty clip slot.
func (r *Registry) AddSlot() error {
	r.mu.Lock()
	if len(r.clips) >= MaxSlots {
		r.mu.Unlock()
		return ErrTooManySlots
	}
	r.clips = append(r.clips, r.newSlot(KindClip))
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
	return nil
}

// RemoveSlot removes clip slot i. The last slot cannot be removed.
func (r *Registry) RemoveSlot(i int) error {
	r.mu.Lock()
	if i < 0 || i >= len(r.clips) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d (have %d)", ErrSlotIndex, i, len(r.clips))
	}
	if len(r.clips) <= 1 {
		r.mu.Unlock()
		return ErrLastSlot
	}
	r.clips = append(r.clips[:i:i], r.clips[i+1:]...)
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
	return nil
}

// setURL updates s and returns the function that dispatches its probe.
// Must be called with r.mu held; the returned func must be called without it.
func (r *Registry) setURL(s *Slot, rawURL string) func() {
	s.URL = rawURL
	s.Duration = probe.Unknown
	s.Pending = s.Resolved()
	if !s.Pending {
		return func() {}
	}
	id, u := s.ID, s.URL
	return func() { r.dispatch(id, u) }
}

func (r *Registry) dispatch(id int, u string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := r.prober.Probe(r.ctx, u)
		r.resolve(id, u, res)
	}()
}

// resolve records a probe result if the slot still holds the URL it was
// dispatched for. Results for removed slots or replaced URLs are dropped.
func (r *Registry) resolve(id int, u string, res probe.Result) {
	r.mu.Lock()
	s := r.slotByID(id)
	if s == nil || s.URL != u {
		r.mu.Unlock()
		r.logger.Debug("discarding stale probe", "slot", id, "url", u)
		return
	}
	s.Duration = res
	s.Pending = false
	kind := s.Kind
	view := r.commit()
	r.mu.Unlock()

	r.logger.Debug("probe resolved", "slot", id, "kind", kind, "duration", res.String())
	r.notify(view)
}

func (r *Registry) slotByID(id int) *Slot {
	switch id {
	case r.voiceover.ID:
		return &r.voiceover
	case r.cta.ID:
		return &r.cta
	}
	for i := range r.clips {
		if r.clips[i].ID == id {
			return &r.clips[i]
		}
	}
	return nil
}

// ProbeAll re-probes every resolved slot and waits for the results.
func (r *Registry) ProbeAll(ctx context.Context) error {
	type job struct {
		id  int
		url string
	}
	r.mu.Lock()
	var jobs []job
	for _, s := range r.allSlots() {
		if s.Resolved() {
			jobs = append(jobs, job{s.ID, s.URL})
		}
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, j := range jobs {
		g.Go(func() error {
			res := r.prober.Probe(gctx, j.url)
			r.resolve(j.id, j.url, res)
			return gctx.Err()
		})
	}
	return g.Wait()
}

// Wait blocks until every dispatched probe has resolved.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels outstanding probes and waits for them to return.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

// View returns a copy of the registry state.
func (r *Registry) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view()
}

// Report returns the current timing report.
func (r *Registry) Report() timing.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// RunRequest builds the manual run request from the resolved slots.
func (r *Registry) RunRequest() (pipeline.RunRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assets := &pipeline.ManualAssets{}
	for _, s := range r.clips {
		if s.Resolved() {
			assets.Clips = append(assets.Clips, s.URL)
		}
	}
	if len(assets.Clips) == 0 {
		return pipeline.RunRequest{}, ErrNoClips
	}
	if r.voiceover.Resolved() {
		assets.Voiceover = r.voiceover.URL
	}
	if r.cta.Resolved() {
		assets.CtaURL = r.cta.URL
	}
	return pipeline.RunRequest{Manual: assets}, nil
}

// commit recomputes the report and returns a view. Must be called with r.mu held.
func (r *Registry) commit() View {
	r.recompute()
	return r.view()
}

func (r *Registry) recompute() {
	in := timing.Input{
		CtaEnabled:  r.settings.CtaEnabled,
		CtaDuration: r.settings.CtaDuration,
	}
	for _, s := range r.clips {
		in.Clips = append(in.Clips, s.Seconds())
		if s.unknown() {
			in.UnknownClips++
		}
	}
	in.Voice = r.voiceover.Seconds()
	in.VoiceUnknown = r.voiceover.unknown()
	if r.cta.Resolved() && !r.cta.Pending && r.cta.Duration.Known {
		in.CtaDuration = r.cta.Duration.Seconds
	}
	r.report = timing.Reconcile(in, r.settings.Policy)
}

func (r *Registry) view() View {
	clips := make([]Slot, len(r.clips))
	copy(clips, r.clips)
	return View{Clips: clips, Voiceover: r.voiceover, Cta: r.cta, Report: r.report}
}

func (r *Registry) allSlots() []Slot {
	out := make([]Slot, 0, len(r.clips)+2)
	out = append(out, r.clips...)
	return append(out, r.voiceover, r.cta)
}

func (r *Registry) notify(v View) {
	if r.onChange != nil {
		r.onChange(v)
	}
}

// validURL accepts non-empty, scheme-qualified URLs with a host. The scheme
// itself is left to the pipeline server.
func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
