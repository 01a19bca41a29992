package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lucasnoah/reactorctl/internal/db"
	"github.com/lucasnoah/reactorctl/internal/manual"
	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/poller"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/render"
	"github.com/lucasnoah/reactorctl/internal/timing"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"iconClass": func(i render.Icon) string {
		return "icon icon-" + string(i)
	},
	"glyph": render.Glyph,
	"pct": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
	"statusClass": func(s timing.Status) string {
		return "timing timing-" + string(s)
	},
	"relTime": relTime,
}

// Controller is the run control the dashboard drives. Satisfied by *poller.Poller.
type Controller interface {
	Mirror() pipeline.Mirror
	Preview() *remote.LastResult
	Subscribe() (<-chan poller.Update, func())
	Start(ctx context.Context, req pipeline.RunRequest) error
	Resume(ctx context.Context) error
}

// ManualSource supplies the manual asset registry. Satisfied by *manual.Registry.
type ManualSource interface {
	View() manual.View
	RunRequest() (pipeline.RunRequest, error)
}

// EventSource lists recorded events. Satisfied by *db.DB.
type EventSource interface {
	RecentEvents(ctx context.Context, kind string, limit int) ([]db.Event, error)
}

// Server is the local dashboard.
type Server struct {
	ctl      Controller
	manual   ManualSource
	events   EventSource
	estimate timing.Report
	addr     string
	logger   *slog.Logger

	keepAlive     time.Duration
	dashboardTmpl *template.Template
}

// Option configures a Server.
type Option func(*Server)

// WithManual exposes the manual registry on the dashboard.
func WithManual(m ManualSource) Option {
	return func(s *Server) { s.manual = m }
}

// WithEvents shows recent events from the event log.
func WithEvents(e EventSource) Option {
	return func(s *Server) { s.events = e }
}

// WithEstimate shows the configured timing estimate.
func WithEstimate(r timing.Report) Option {
	return func(s *Server) { s.estimate = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server listening on addr.
func NewServer(ctl Controller, addr string, opts ...Option) *Server {
	s := &Server{
		ctl:           ctl,
		addr:          addr,
		logger:        slog.New(slog.DiscardHandler),
		keepAlive:     15 * time.Second,
		dashboardTmpl: mustParseTmpl("dashboard.html"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/timing", s.handleTiming)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	return mux
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", "url", "http://"+displayAddr(s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func relTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
