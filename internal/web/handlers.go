package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lucasnoah/reactorctl/internal/db"
	"github.com/lucasnoah/reactorctl/internal/manual"
	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/poller"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/render"
	"github.com/lucasnoah/reactorctl/internal/timing"
)

// ViewResponse is the body of GET /api/view and of each SSE message.
type ViewResponse struct {
	Model   render.Model       `json:"model"`
	Preview *remote.LastResult `json:"preview,omitempty"`
	PollErr string             `json:"poll_error,omitempty"`
}

// TimingResponse is the body of GET /api/timing.
type TimingResponse struct {
	Estimate timing.Report `json:"estimate"`
	Manual   *manual.View  `json:"manual,omitempty"`
}

type dashboardData struct {
	View   ViewResponse
	Timing TimingResponse
	Events []db.Event
}

func (s *Server) viewOf(m pipeline.Mirror) ViewResponse {
	return ViewResponse{Model: render.Render(render.FromMirror(m)), Preview: s.ctl.Preview()}
}

func (s *Server) timing() TimingResponse {
	t := TimingResponse{Estimate: s.estimate}
	if s.manual != nil {
		v := s.manual.View()
		t.Manual = &v
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{View: s.viewOf(s.ctl.Mirror()), Timing: s.timing()}
	if s.events != nil {
		events, err := s.events.RecentEvents(r.Context(), "", 20)
		if err != nil {
			s.logger.Warn("load events", "error", err)
		}
		data.Events = events
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error("render dashboard", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewOf(s.ctl.Mirror()))
}

func (s *Server) handleTiming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.timing())
}

type runBody struct {
	TopicID string `json:"topic_id"`
	Manual  bool   `json:"manual"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	req := pipeline.RunRequest{TopicID: body.TopicID}
	if body.Manual {
		if s.manual == nil {
			writeError(w, http.StatusBadRequest, "manual assets are not available")
			return
		}
		var err error
		if req, err = s.manual.RunRequest(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.ctl.Start(r.Context(), req); err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Resume(r.Context()); err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	var apiErr *remote.APIError
	switch {
	case errors.Is(err, poller.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Pipeline already running")
	case errors.Is(err, poller.ErrNoClips):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
