package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucasnoah/reactorctl/internal/config"
	"github.com/lucasnoah/reactorctl/internal/db"
	"github.com/lucasnoah/reactorctl/internal/gate"
	"github.com/lucasnoah/reactorctl/internal/manual"
	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/poller"
	"github.com/lucasnoah/reactorctl/internal/probe"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/timing"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// deps is everything a pipeline command talks to.
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
	client *remote.Client
	store  *pipeline.Store
	events *db.DB // nil when no database is configured
	gate   *gate.Machine
	poller *poller.Poller
}

// newDeps loads config and wires the client, store, event log, gate
// machine and poller. The returned cleanup stops polling and closes the
// database.
func newDeps(cmd *cobra.Command) (*deps, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid config: %s", errs[0])
	}
	logger := newLogger(cmd)

	store, err := pipeline.DefaultStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	last, _, err := store.LoadMirror()
	if err != nil {
		logger.Warn("load last mirror", "error", err)
	}
	// A saved running flag is only what the last process saw. Until a
	// status fetch confirms it, the remote is treated as idle.
	last.Running = false

	d := &deps{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: remote.NewClient(cfg.Server.URL,
			remote.WithToken(cfg.Server.Token),
			remote.WithTimeout(cfg.RequestTimeout()),
			remote.WithLogger(logger)),
	}

	if cfg.Database.URL != "" {
		events, err := openEvents(cmd.Context(), cfg.Database.URL)
		if err != nil {
			// The event log is optional; commands still work without it.
			logger.Warn("event log unavailable", "error", err)
		} else {
			d.events = events
		}
	}

	gateOpts := []gate.Option{gate.WithLogger(logger)}
	pollOpts := []poller.Option{
		poller.WithStore(store),
		poller.WithLogger(logger),
		poller.WithMirror(last),
		poller.WithIntervals(cfg.PollInterval(), cfg.PollErrorInterval()),
	}
	if d.events != nil {
		gateOpts = append(gateOpts, gate.WithEventLogger(d.events))
		pollOpts = append(pollOpts, poller.WithEventLogger(d.events))
	}
	d.gate = gate.New(d.client, nil, gateOpts...)
	d.poller = poller.New(d.client, append(pollOpts, poller.WithGate(d.gate))...)
	d.gate.SetResumer(d.poller)

	cleanup := func() {
		d.poller.Close()
		if d.events != nil {
			d.events.Close()
		}
	}
	return d, cleanup, nil
}

func openEvents(ctx context.Context, url string) (*db.DB, error) {
	d, err := db.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func timingPolicy(cfg *config.Config) timing.Policy {
	p := timing.DefaultPolicy(cfg.Render.ClipDuration)
	if cfg.Timing.WarnOverflow != nil {
		p.WarnOverflow = *cfg.Timing.WarnOverflow
	}
	if cfg.Timing.InfoUnderflow != nil {
		p.InfoUnderflow = *cfg.Timing.InfoUnderflow
	}
	if cfg.Timing.TrailingPad != nil {
		p.TrailingPad = *cfg.Timing.TrailingPad
	}
	return p
}

func configuredEstimate(cfg *config.Config) timing.Report {
	return timing.Estimate(timing.Settings{
		ClipCount:    cfg.Render.ClipCount,
		ClipDuration: cfg.Render.ClipDuration,
		CtaEnabled:   cfg.Render.CtaOn(),
		CtaDuration:  cfg.Render.CtaDuration,
		TargetWords:  cfg.Render.TargetWords,
	}, timingPolicy(cfg))
}

// openRegistry builds the manual registry and restores its saved slots.
func openRegistry(d *deps, opts ...manual.Option) (*manual.Registry, error) {
	settings := manual.Settings{
		CtaEnabled:  d.cfg.Render.CtaOn(),
		CtaDuration: d.cfg.Render.CtaDuration,
		Policy:      timingPolicy(d.cfg),
	}
	prober := probe.New(d.client, d.logger)
	reg := manual.New(prober, settings, append([]manual.Option{manual.WithLogger(d.logger)}, opts...)...)

	rec, ok, err := d.store.LoadManual()
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("load manual assets: %w", err)
	}
	if ok {
		reg.Restore(rec)
	}
	return reg, nil
}

// saveRegistry waits for outstanding probes and persists the slots.
func saveRegistry(d *deps, reg *manual.Registry) error {
	reg.Wait()
	return d.store.SaveManual(reg.Record())
}
