// Package render projects the pipeline mirror into a display model.
package render

import (
	"github.com/lucasnoah/reactorctl/internal/pipeline"
)

// Icon is the visual state of one phase row.
type Icon string

const (
	IconWaiting Icon = "waiting"
	IconRunning Icon = "running"
	IconDone    Icon = "done"
	IconGated   Icon = "gated"
	IconFailed  Icon = "failed"
)

// View is the renderer input.
type View struct {
	Phases       []pipeline.Phase
	Completed    map[int]bool
	Running      bool
	CurrentPhase int
	Gate         pipeline.Gate
	LastResult   *pipeline.Result
}

// FromMirror builds a View over the standard phase list.
func FromMirror(m pipeline.Mirror) View {
	return View{
		Phases:       pipeline.Phases(),
		Completed:    m.Completed,
		Running:      m.Running,
		CurrentPhase: m.CurrentPhase,
		Gate:         m.Gate,
		LastResult:   m.LastResult,
	}
}

// Row is one rendered phase.
type Row struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Icon  Icon   `json:"icon"`
	Badge string `json:"badge,omitempty"`
}

// Model is the full display model.
type Model struct {
	Rows     []Row   `json:"rows"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
	Running  bool    `json:"running"`
	Gate     string  `json:"gate,omitempty"`
	Banner   string  `json:"banner,omitempty"`
	Status   string  `json:"status,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Render is total: any View, including an empty one, yields a Model.
func Render(v View) Model {
	m := Model{
		Rows:    make([]Row, 0, len(v.Phases)),
		Total:   len(v.Phases),
		Running: v.Running,
	}
	failed := v.LastResult != nil && v.LastResult.Status == pipeline.StatusFailed

	for _, ph := range v.Phases {
		i := ph.Index
		row := Row{Index: i, Label: ph.Label, Icon: IconWaiting}
		switch {
		case v.Completed[i]:
			row.Icon, row.Badge = IconDone, "done"
			m.Done++
		case v.Running && i == v.CurrentPhase:
			row.Icon, row.Badge = IconRunning, "running"
		case v.Running && i < v.CurrentPhase:
			row.Icon, row.Badge = IconDone, "done"
		case !v.Running && v.Gate != pipeline.GateNone && ph.Gate == v.Gate:
			row.Icon, row.Badge = IconGated, gateBadge(v.Gate)
		case !v.Running && failed && i == v.CurrentPhase:
			row.Icon, row.Badge = IconFailed, "failed"
		}
		m.Rows = append(m.Rows, row)
	}
	if m.Total > 0 {
		m.Fraction = float64(m.Done) / float64(m.Total)
	}

	if !v.Running && v.Gate != pipeline.GateNone {
		m.Gate = v.Gate.String()
		m.Banner = gateBanner(v.Gate)
	}
	if v.LastResult != nil {
		m.Status = string(v.LastResult.Status)
		m.Error = v.LastResult.Error
	}
	return m
}

func gateBadge(g pipeline.Gate) string {
	switch g {
	case pipeline.GatePrompts:
		return "review prompts"
	case pipeline.GateVideos:
		return "review videos"
	}
	return ""
}

func gateBanner(g pipeline.Gate) string {
	switch g {
	case pipeline.GatePrompts:
		return "Paused for review: edit scene prompts, then save to continue"
	case pipeline.GateVideos:
		return "Paused for review: check generated clips, then approve to continue"
	}
	return ""
}
