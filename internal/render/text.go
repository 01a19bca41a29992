package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	gateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	bannerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
)

// Glyph returns the single-character marker for an icon.
func Glyph(i Icon) string {
	switch i {
	case IconDone:
		return "✓"
	case IconRunning:
		return "●"
	case IconGated:
		return "⏸"
	case IconFailed:
		return "✗"
	default:
		return "○"
	}
}

// StyleFor returns the lipgloss style used for an icon.
func StyleFor(i Icon) lipgloss.Style {
	switch i {
	case IconDone:
		return okStyle
	case IconRunning:
		return runningStyle
	case IconGated:
		return gateStyle
	case IconFailed:
		return errorStyle
	default:
		return mutedStyle
	}
}

// Text formats the model for a terminal.
func Text(m Model) string {
	var b strings.Builder
	state := "idle"
	switch {
	case m.Running:
		state = "running"
	case m.Gate != "":
		state = "gated"
	case m.Status != "":
		state = m.Status
	}
	fmt.Fprintf(&b, "%s %s\n\n", titleStyle.Render("Pipeline"), mutedStyle.Render(fmt.Sprintf("%s · %d/%d phases", state, m.Done, m.Total)))

	for _, r := range m.Rows {
		st := StyleFor(r.Icon)
		line := fmt.Sprintf("  %s %2d  %-16s", st.Render(Glyph(r.Icon)), r.Index+1, r.Label)
		if r.Badge != "" {
			line += " " + st.Render(r.Badge)
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	fmt.Fprintf(&b, "\n  %s\n", Bar(m.Fraction, 30))

	if m.Banner != "" {
		b.WriteString("\n" + bannerStyle.Render(m.Banner) + "\n")
	}
	if m.Error != "" {
		b.WriteString("\n" + errorStyle.Render("error: ") + m.Error + "\n")
	}
	return b.String()
}

// Bar draws a plain progress bar of the given width.
func Bar(fraction float64, width int) string {
	if width <= 0 {
		return ""
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*float64(width) + 0.5)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %3.0f%%", fraction*100)
}
