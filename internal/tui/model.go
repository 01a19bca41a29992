// Package tui is the live terminal view of a pipeline run.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/poller"
	"github.com/lucasnoah/reactorctl/internal/remote"
	"github.com/lucasnoah/reactorctl/internal/render"
)

// Source is what the view follows. Satisfied by *poller.Poller.
type Source interface {
	Mirror() pipeline.Mirror
	Subscribe() (<-chan poller.Update, func())
	Resume(ctx context.Context) error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	bannerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
)

type keyMap struct {
	quit   key.Binding
	resume key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		resume: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resume"),
		),
	}
}

type updateMsg poller.Update

type channelClosedMsg struct{}

type resumeDoneMsg struct {
	err error
}

// Model is the bubbletea model for `reactor watch`.
type Model struct {
	src     Source
	updates <-chan poller.Update
	unsub   func()
	keys    keyMap

	spinner spinner.Model
	bar     progress.Model

	mirror     pipeline.Mirror
	preview    *remote.LastResult
	pollErr    error
	status     string
	finished   bool
	exitOnStop bool
	width      int
}

// New creates a model following src. With exitOnStop the program quits
// once the run stops.
func New(src Source, exitOnStop bool) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ch, unsub := src.Subscribe()
	return Model{
		src:        src,
		updates:    ch,
		unsub:      unsub,
		keys:       newKeyMap(),
		spinner:    s,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		mirror:     src.Mirror(),
		exitOnStop: exitOnStop,
	}
}

func listenForUpdates(ch <-chan poller.Update) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return updateMsg(u)
	}
}

func resumeCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return resumeDoneMsg{err: src.Resume(ctx)}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenForUpdates(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 10
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil
	case updateMsg:
		m.mirror = msg.Mirror
		m.pollErr = msg.PollErr
		if msg.Preview != nil {
			m.preview = msg.Preview
		}
		if msg.Finished {
			m.finished = true
			if m.exitOnStop {
				return m.quit()
			}
		}
		return m, listenForUpdates(m.updates)
	case channelClosedMsg:
		return m, nil
	case resumeDoneMsg:
		if msg.err != nil {
			m.status = "resume failed: " + msg.err.Error()
		} else {
			m.status = "resumed"
			m.finished = false
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m.quit()
		case key.Matches(msg, m.keys.resume):
			if m.mirror.Running {
				m.status = "already running"
				return m, nil
			}
			m.status = "resuming..."
			return m, resumeCmd(m.src)
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	return m, tea.Quit
}

func (m Model) View() string {
	model := render.Render(render.FromMirror(m.mirror))
	var b strings.Builder

	state := "idle"
	switch {
	case model.Running:
		state = "running"
	case model.Gate != "":
		state = "waiting for review"
	case model.Status != "":
		state = model.Status
	}
	fmt.Fprintf(&b, "%s  %s\n\n", titleStyle.Render("Knights Reactor"), mutedStyle.Render(state))

	for _, r := range model.Rows {
		glyph := render.StyleFor(r.Icon).Render(render.Glyph(r.Icon))
		if r.Icon == render.IconRunning {
			glyph = m.spinner.View()
		}
		line := fmt.Sprintf(" %s %-16s", glyph, r.Label)
		if r.Badge != "" && r.Icon != render.IconDone {
			line += " " + render.StyleFor(r.Icon).Render(r.Badge)
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	b.WriteString("\n " + m.bar.ViewAs(model.Fraction) + "\n")

	if model.Banner != "" {
		b.WriteString("\n" + bannerStyle.Render(model.Banner) + "\n")
	}
	if model.Error != "" {
		b.WriteString("\n " + errorStyle.Render("error: ") + model.Error + "\n")
	}
	if m.pollErr != nil {
		b.WriteString("\n " + mutedStyle.Render("connection lost, retrying: "+m.pollErr.Error()) + "\n")
	}
	if m.preview != nil && m.preview.FinalVideo != "" {
		b.WriteString("\n final video: " + m.preview.FinalVideo + "\n")
	}
	if m.status != "" {
		b.WriteString("\n " + mutedStyle.Render(m.status) + "\n")
	}

	help := "q quit"
	if !model.Running {
		help = "r resume · q quit"
	}
	b.WriteString("\n " + mutedStyle.Render(help) + "\n")
	return b.String()
}

// Run starts the program on the terminal.
func Run(src Source, exitOnStop bool) error {
	p := tea.NewProgram(New(src, exitOnStop), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
