// Package gate tracks the review checkpoint the remote pipeline is halted at
// and performs the edit/approve actions that release it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/remote"
)

var (
	// ErrNoContent means the server has nothing staged for review.
	ErrNoContent = errors.New("nothing staged for review")
	// ErrNotGated means the action needs a gate that is not active.
	ErrNotGated = errors.New("pipeline is not halted at this gate")
	// ErrUnknownClip means an index is not part of the staged payload.
	ErrUnknownClip = errors.New("clip not in staged payload")
)

// ResumeError reports that an approval was accepted but the resume that
// follows it failed. The gate is already released locally.
type ResumeError struct {
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("approved, but resume failed: %v", e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }

// API is the slice of the pipeline server the machine calls.
// Satisfied by *remote.Client.
type API interface {
	Prompts(ctx context.Context) (remote.PromptPayload, error)
	SavePrompts(ctx context.Context, clips []remote.PromptClip) error
	VideosReview(ctx context.Context) (remote.VideoPayload, error)
	RegenClip(ctx context.Context, index int) (remote.VideoClip, error)
	ApproveVideos(ctx context.Context, clips []remote.VideoClip) error
}

// Resumer continues the remote run. Satisfied by *poller.Poller.
type Resumer interface {
	Resume(ctx context.Context) error
}

// EventLogger records gate transitions. Satisfied by *db.DB.
type EventLogger interface {
	LogEvent(ctx context.Context, kind, detail string) error
}

// PromptEdit changes one clip's prompts. Nil fields are left as loaded.
type PromptEdit struct {
	ImagePrompt  *string
	MotionPrompt *string
}

// Machine is the gate state machine. It is safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   pipeline.Gate
	prompts *remote.PromptPayload
	videos  *remote.VideoPayload

	api     API
	resumer Resumer
	events  EventLogger
	logger  *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithEventLogger records transitions to l.
func WithEventLogger(l EventLogger) Option {
	return func(m *Machine) { m.events = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New creates a machine in the NONE state.
func New(api API, resumer Resumer, opts ...Option) *Machine {
	m := &Machine{api: api, resumer: resumer, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetResumer replaces the resumer. Used when the resumer is built after
// the machine.
func (m *Machine) SetResumer(r Resumer) {
	m.mu.Lock()
	m.resumer = r
	m.mu.Unlock()
}

// State returns the active gate.
func (m *Machine) State() pipeline.Gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe feeds a gate value from a status snapshot. This is the only way
// into a gated state. GateNone is ignored: a gate is left only through an
// approval or Reset.
func (m *Machine) Observe(g pipeline.Gate) {
	m.mu.Lock()
	if g == pipeline.GateNone || g == m.state {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = g
	m.prompts, m.videos = nil, nil
	m.mu.Unlock()

	m.logger.Info("gate entered", "gate", g.String(), "previous", prev.String())
	m.record(context.Background(), "gate_entered", g.String())
}

// Reset returns to NONE and drops any loaded payload. Called when a new
// run starts or the run is resumed without an approval.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = pipeline.GateNone
	m.prompts, m.videos = nil, nil
	m.mu.Unlock()
}

// LoadPromptEditPayload fetches the staged scene prompts.
func (m *Machine) LoadPromptEditPayload(ctx context.Context) (remote.PromptPayload, error) {
	if err := m.require(pipeline.GatePrompts); err != nil {
		return remote.PromptPayload{}, err
	}
	p, err := m.api.Prompts(ctx)
	if err != nil {
		return remote.PromptPayload{}, noContent("load prompts", err)
	}
	if len(p.Clips) == 0 {
		return remote.PromptPayload{}, fmt.Errorf("load prompts: %w", ErrNoContent)
	}
	m.mu.Lock()
	m.prompts = &p
	m.mu.Unlock()
	return clonePrompts(p), nil
}

// Prompts returns the loaded prompt payload, if any.
func (m *Machine) Prompts() (remote.PromptPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompts == nil {
		return remote.PromptPayload{}, false
	}
	return clonePrompts(*m.prompts), true
}

// SavePrompts merges edits over the loaded payload, submits every clip,
// releases the prompts gate and resumes. The payload is loaded first if
// needed. On a save failure the gate and payload are unchanged.
func (m *Machine) SavePrompts(ctx context.Context, edits map[int]PromptEdit) error {
	if err := m.require(pipeline.GatePrompts); err != nil {
		return err
	}
	base, ok := m.Prompts()
	if !ok {
		var err error
		if base, err = m.LoadPromptEditPayload(ctx); err != nil {
			return err
		}
	}

	merged := clonePrompts(base)
	pos := make(map[int]int, len(merged.Clips))
	for i, c := range merged.Clips {
		pos[c.Index] = i
	}
	for idx, e := range edits {
		i, ok := pos[idx]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownClip, idx)
		}
		if e.ImagePrompt != nil {
			merged.Clips[i].ImagePrompt = *e.ImagePrompt
		}
		if e.MotionPrompt != nil {
			merged.Clips[i].MotionPrompt = *e.MotionPrompt
		}
	}

	if err := m.api.SavePrompts(ctx, merged.Clips); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	m.mu.Lock()
	m.prompts = &merged
	m.mu.Unlock()
	return m.release(ctx, pipeline.GatePrompts, fmt.Sprintf("%d clips, %d edited", len(merged.Clips), len(edits)))
}

// LoadVideoReviewPayload fetches the generated clips staged for review.
func (m *Machine) LoadVideoReviewPayload(ctx context.Context) (remote.VideoPayload, error) {
	if err := m.require(pipeline.GateVideos); err != nil {
		return remote.VideoPayload{}, err
	}
	p, err := m.api.VideosReview(ctx)
	if err != nil {
		return remote.VideoPayload{}, noContent("load videos", err)
	}
	if len(p.Clips) == 0 {
		return remote.VideoPayload{}, fmt.Errorf("load videos: %w", ErrNoContent)
	}
	m.mu.Lock()
	m.videos = &p
	m.mu.Unlock()
	return cloneVideos(p), nil
}

// Videos returns the loaded video payload, if any.
func (m *Machine) Videos() (remote.VideoPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videos == nil {
		return remote.VideoPayload{}, false
	}
	return cloneVideos(*m.videos), true
}

// RegenerateClip asks for a new version of one clip and updates only that
// clip's preview. The gate state never changes.
func (m *Machine) RegenerateClip(ctx context.Context, index int) (remote.VideoClip, error) {
	if err := m.require(pipeline.GateVideos); err != nil {
		return remote.VideoClip{}, err
	}
	if _, ok := m.Videos(); !ok {
		if _, err := m.LoadVideoReviewPayload(ctx); err != nil {
			return remote.VideoClip{}, err
		}
	}
	if !m.hasVideo(index) {
		return remote.VideoClip{}, fmt.Errorf("%w: %d", ErrUnknownClip, index)
	}

	clip, err := m.api.RegenClip(ctx, index)
	if err != nil {
		return remote.VideoClip{}, fmt.Errorf("regenerate clip %d: %w", index, err)
	}

	m.mu.Lock()
	if m.videos != nil {
		for i := range m.videos.Clips {
			if m.videos.Clips[i].Index == index {
				m.videos.Clips[i].VideoURL = clip.VideoURL
			}
		}
	}
	m.mu.Unlock()
	m.record(ctx, "clip_regenerated", fmt.Sprintf("clip %d", index))
	return clip, nil
}

// ApproveAllVideos submits the full reviewed clip set, releases the videos
// gate and resumes.
func (m *Machine) ApproveAllVideos(ctx context.Context) error {
	if err := m.require(pipeline.GateVideos); err != nil {
		return err
	}
	p, ok := m.Videos()
	if !ok {
		var err error
		if p, err = m.LoadVideoReviewPayload(ctx); err != nil {
			return err
		}
	}
	if err := m.api.ApproveVideos(ctx, p.Clips); err != nil {
		return fmt.Errorf("approve videos: %w", err)
	}
	return m.release(ctx, pipeline.GateVideos, fmt.Sprintf("%d clips", len(p.Clips)))
}

// release clears gate g and resumes. The lock is not held during Resume.
func (m *Machine) release(ctx context.Context, g pipeline.Gate, detail string) error {
	m.mu.Lock()
	if m.state == g {
		m.state = pipeline.GateNone
	}
	resumer := m.resumer
	m.mu.Unlock()

	m.logger.Info("gate approved", "gate", g.String(), "detail", detail)
	m.record(ctx, "gate_approved", g.String()+": "+detail)

	if resumer == nil {
		return &ResumeError{Err: errors.New("no resumer configured")}
	}
	if err := resumer.Resume(ctx); err != nil {
		return &ResumeError{Err: err}
	}
	return nil
}

func (m *Machine) require(g pipeline.Gate) error {
	if s := m.State(); s != g {
		return fmt.Errorf("%w: want %s, at %s", ErrNotGated, g, s)
	}
	return nil
}

func (m *Machine) hasVideo(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videos == nil {
		return false
	}
	for _, c := range m.videos.Clips {
		if c.Index == index {
			return true
		}
	}
	return false
}

func (m *Machine) record(ctx context.Context, kind, detail string) {
	if m.events == nil {
		return
	}
	if err := m.events.LogEvent(ctx, kind, detail); err != nil {
		m.logger.Warn("event log write failed", "kind", kind, "error", err)
	}
}

// noContent maps a 404 from the server to ErrNoContent.
func noContent(op string, err error) error {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %s", op, ErrNoContent, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func clonePrompts(p remote.PromptPayload) remote.PromptPayload {
	out := p
	out.Clips = append([]remote.PromptClip(nil), p.Clips...)
	return out
}

func cloneVideos(p remote.VideoPayload) remote.VideoPayload {
	out := p
	out.Clips = append([]remote.VideoClip(nil), p.Clips...)
	return out
}
