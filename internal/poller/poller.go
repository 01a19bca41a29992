// Package poller owns the run/resume commands and the status loop that
// keeps the local mirror of the remote pipeline current.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/remote"
)

var (
	// ErrAlreadyRunning rejects a start or resume while a run is active.
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrNoClips rejects a manual run without clip URLs.
	ErrNoClips = errors.New("manual run needs at least one clip")
)

// API is the slice of the pipeline server the poller calls.
// Satisfied by *remote.Client.
type API interface {
	Run(ctx context.Context, req pipeline.RunRequest) error
	Status(ctx context.Context) (pipeline.Snapshot, error)
	Resume(ctx context.Context) error
	LastResult(ctx context.Context) (remote.LastResult, error)
}

// GateObserver receives gate values from snapshots. Satisfied by *gate.Machine.
type GateObserver interface {
	Observe(g pipeline.Gate)
	Reset()
}

// EventLogger records run transitions. Satisfied by *db.DB.
type EventLogger interface {
	LogEvent(ctx context.Context, kind, detail string) error
}

// MirrorSaver persists the mirror after each change. Satisfied by *pipeline.Store.
type MirrorSaver interface {
	SaveMirror(m pipeline.Mirror) error
}

// Update is delivered to subscribers after every mirror change and every
// failed poll.
type Update struct {
	Mirror pipeline.Mirror
	// PollErr is set when a status fetch failed; the mirror is unchanged.
	PollErr error
	// Finished is set on the update that ends the loop.
	Finished bool
	// Preview holds the last-result artifacts once a run has ended.
	Preview *remote.LastResult
}

// Poller drives the remote pipeline. It is safe for concurrent use.
type Poller struct {
	mu      sync.Mutex
	mirror  pipeline.Mirror
	preview *remote.LastResult
	pending bool // run or resume request in flight
	looping bool
	done    chan struct{}
	subs    map[int]chan Update
	nextSub int

	api    API
	gate   GateObserver
	events EventLogger
	store  MirrorSaver
	logger *slog.Logger

	interval      time.Duration // defaults to 2s
	errorInterval time.Duration // defaults to 5s
	progress      io.Writer     // live progress output; nil = silent

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithGate forwards snapshot gates to g.
func WithGate(g GateObserver) Option {
	return func(p *Poller) { p.gate = g }
}

// WithEventLogger records transitions to l.
func WithEventLogger(l EventLogger) Option {
	return func(p *Poller) { p.events = l }
}

// WithStore persists the mirror to s.
func WithStore(s MirrorSaver) Option {
	return func(p *Poller) { p.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithMirror seeds the mirror, e.g. from the local store.
func WithMirror(m pipeline.Mirror) Option {
	return func(p *Poller) { p.mirror = m }
}

// WithIntervals sets the poll interval after a successful and a failed poll.
func WithIntervals(ok, failed time.Duration) Option {
	return func(p *Poller) {
		if ok > 0 {
			p.interval = ok
		}
		if failed > 0 {
			p.errorInterval = failed
		}
	}
}

// New creates a Poller. Close releases its loop.
func New(api API, opts ...Option) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		api:           api,
		subs:          make(map[int]chan Update),
		logger:        slog.New(slog.DiscardHandler),
		interval:      2 * time.Second,
		errorInterval: 5 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mirror.Completed == nil {
		p.mirror.Completed = map[int]bool{}
	}
	return p
}

// SetPollInterval overrides the success poll interval (for testing).
func (p *Poller) SetPollInterval(d time.Duration) {
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// SetErrorInterval overrides the backoff interval (for testing).
func (p *Poller) SetErrorInterval(d time.Duration) {
	p.mu.Lock()
	p.errorInterval = d
	p.mu.Unlock()
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (p *Poller) SetProgress(w io.Writer) {
	p.mu.Lock()
	p.progress = w
	p.mu.Unlock()
}

func (p *Poller) logf(format string, args ...any) {
	p.mu.Lock()
	w := p.progress
	p.mu.Unlock()
	if w != nil {
		fmt.Fprintf(w, "  → "+format+"\n", args...)
	}
}

// Mirror returns a copy of the current mirror.
func (p *Poller) Mirror() pipeline.Mirror {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mirror.Clone()
}

// Preview returns the artifacts fetched when the last run ended.
func (p *Poller) Preview() *remote.LastResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preview
}

// Polling reports whether the status loop is active.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.looping
}

// Start issues a run command and begins polling. It fails with
// ErrAlreadyRunning, without contacting the server, while a run is active
// or another start is in flight.
func (p *Poller) Start(ctx context.Context, req pipeline.RunRequest) error {
	if req.IsManual() && len(req.Manual.Clips) == 0 {
		return ErrNoClips
	}
	if err := p.claim(); err != nil {
		return err
	}

	err := p.api.Run(ctx, req)

	p.mu.Lock()
	p.pending = false
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start run: %w", err)
	}
	p.mirror = p.mirror.Started()
	p.preview = nil
	m := p.mirror
	p.mu.Unlock()

	if p.gate != nil {
		p.gate.Reset()
	}
	kind := "auto"
	if req.IsManual() {
		kind = fmt.Sprintf("manual, %d clips", len(req.Manual.Clips))
	} else if req.TopicID != "" {
		kind = "topic " + req.TopicID
	}
	p.logger.Info("run started", "mode", kind)
	p.logf("run started (%s)", kind)
	p.record(ctx, "run_started", kind)
	p.publish(m, Update{Mirror: m})
	p.startLoop()
	return nil
}

// Resume continues a gated or failed run and begins polling. On failure the
// server's error is returned and the mirror is unchanged.
func (p *Poller) Resume(ctx context.Context) error {
	if err := p.claim(); err != nil {
		return err
	}

	err := p.api.Resume(ctx)

	p.mu.Lock()
	p.pending = false
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("resume: %w", err)
	}
	p.mirror = p.mirror.Resumed()
	m := p.mirror
	p.mu.Unlock()

	if p.gate != nil {
		p.gate.Reset()
	}
	p.logger.Info("run resumed", "phase", m.CurrentPhase)
	p.logf("resumed at phase %d", m.CurrentPhase)
	p.record(ctx, "resumed", fmt.Sprintf("phase %d", m.CurrentPhase))
	p.publish(m, Update{Mirror: m})
	p.startLoop()
	return nil
}

// Refresh fetches one status snapshot and applies it. While the loop is
// active it returns the current mirror without a request, so there is never
// more than one status request outstanding.
func (p *Poller) Refresh(ctx context.Context) (pipeline.Mirror, error) {
	if p.Polling() {
		return p.Mirror(), nil
	}
	snap, err := p.api.Status(ctx)
	if err != nil {
		return p.Mirror(), fmt.Errorf("fetch status: %w", err)
	}
	m := p.apply(snap)
	p.publish(m, Update{Mirror: m})
	return m, nil
}

// Attach refreshes the mirror and, if the remote run is active, starts
// polling it.
func (p *Poller) Attach(ctx context.Context) (pipeline.Mirror, error) {
	m, err := p.Refresh(ctx)
	if err != nil {
		return m, err
	}
	if m.Running {
		p.startLoop()
	}
	return m, nil
}

// Wait blocks until the status loop stops or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	if !p.looping {
		p.mu.Unlock()
		return nil
	}
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel of updates and a func that ends the
// subscription. Slow subscribers miss intermediate updates but always see
// the latest one.
func (p *Poller) Subscribe() (<-chan Update, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan Update, 8)
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

// Close stops the loop and waits for it to exit.
func (p *Poller) Close() {
	p.cancel()
	p.Wait(context.Background())
}

func (p *Poller) claim() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mirror.Running || p.pending {
		return ErrAlreadyRunning
	}
	p.pending = true
	return nil
}

func (p *Poller) startLoop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.looping {
		return
	}
	p.looping = true
	p.done = make(chan struct{})
	go p.loop(p.done)
}

// loop polls until a snapshot reports the run stopped. The next poll is
// scheduled only after the previous one resolved.
func (p *Poller) loop(done chan struct{}) {
	p.mu.Lock()
	delay := p.interval
	p.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.stopLoop(done)
			return
		case <-timer.C:
		}

		snap, err := p.api.Status(p.ctx)
		p.mu.Lock()
		ok, failed := p.interval, p.errorInterval
		p.mu.Unlock()

		if err != nil {
			if p.ctx.Err() != nil {
				p.stopLoop(done)
				return
			}
			p.logger.Warn("status poll failed, backing off", "error", err, "retry_in", failed)
			cur := p.Mirror()
			p.publish(cur, Update{Mirror: cur, PollErr: err})
			timer.Reset(failed)
			continue
		}

		m := p.apply(snap)
		if m.Running {
			p.publish(m, Update{Mirror: m})
			timer.Reset(ok)
			continue
		}

		p.finish(m)

		p.mu.Lock()
		if p.mirror.Running {
			// A new run was started while this one was finishing.
			p.mu.Unlock()
			timer.Reset(ok)
			continue
		}
		p.looping = false
		close(done)
		p.mu.Unlock()
		return
	}
}

func (p *Poller) stopLoop(done chan struct{}) {
	p.mu.Lock()
	p.looping = false
	close(done)
	p.mu.Unlock()
}

// apply replaces the mirror with a snapshot and forwards the gate.
func (p *Poller) apply(snap pipeline.Snapshot) pipeline.Mirror {
	p.mu.Lock()
	prev := p.mirror
	p.mirror = p.mirror.Apply(snap)
	m := p.mirror
	p.mu.Unlock()

	if m.CurrentPhase != prev.CurrentPhase && m.Running {
		p.logf("phase %d/%d: %s", m.CurrentPhase+1, pipeline.PhaseCount, phaseLabel(m.CurrentPhase))
	}
	if p.gate != nil {
		p.gate.Observe(m.Gate)
	}
	return m
}

// finish handles the snapshot that reported the run stopped.
func (p *Poller) finish(m pipeline.Mirror) {
	detail := "stopped"
	if m.LastResult != nil {
		detail = string(m.LastResult.Status)
		if m.Gate != pipeline.GateNone {
			detail += ", gate " + m.Gate.String()
		}
		if m.LastResult.Error != "" {
			detail += ": " + m.LastResult.Error
		}
	}
	p.logger.Info("run stopped", "detail", detail)
	p.logf("run stopped (%s)", detail)
	p.record(p.ctx, "run_stopped", detail)

	var preview *remote.LastResult
	if m.Gate == pipeline.GateNone {
		lr, err := p.api.LastResult(p.ctx)
		if err != nil {
			p.logger.Warn("fetch last result failed", "error", err)
		} else {
			preview = &lr
		}
	}
	p.mu.Lock()
	if preview != nil {
		p.preview = preview
	}
	preview = p.preview
	p.mu.Unlock()

	p.publish(m, Update{Mirror: m, Finished: true, Preview: preview})
}

// publish persists the mirror and fans the update out to subscribers.
func (p *Poller) publish(m pipeline.Mirror, u Update) {
	if p.store != nil && u.PollErr == nil {
		if err := p.store.SaveMirror(m); err != nil {
			p.logger.Warn("save mirror failed", "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- u:
		default:
			// Drop the oldest queued update to make room for the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

func (p *Poller) record(ctx context.Context, kind, detail string) {
	if p.events == nil {
		return
	}
	if err := p.events.LogEvent(ctx, kind, detail); err != nil {
		p.logger.Warn("event log write failed", "kind", kind, "error", err)
	}
}

func phaseLabel(i int) string {
	for _, ph := range pipeline.Phases() {
		if ph.Index == i {
			return ph.Label
		}
	}
	return "done"
}
