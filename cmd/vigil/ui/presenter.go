// Package ui provides the console styling for vigil's operator surface.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vigil/internal/card"
	"vigil/internal/digest"
)

// Semantic colors shared across all rendered output.
var (
	Accent  = lipgloss.Color("#8BC34A") // lime green
	Warning = lipgloss.Color("#FFC107")
	Danger  = lipgloss.Color("#e53935")
	Muted   = lipgloss.Color("#6b7785")
	Info    = lipgloss.Color("#2196F3")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	successStyle = lipgloss.NewStyle().Foreground(Accent)
	dangerStyle  = lipgloss.NewStyle().Foreground(Danger).Bold(true)
)

// impactStyle colors an impact level.
func impactStyle(impact card.Impact) lipgloss.Style {
	switch impact {
	case card.ImpactHigh:
		return lipgloss.NewStyle().Foreground(Danger).Bold(true)
	case card.ImpactMedium:
		return lipgloss.NewStyle().Foreground(Warning)
	default:
		return lipgloss.NewStyle().Foreground(Muted)
	}
}

// ConsolePresenter renders cards and digests to a writer. Satisfies
// digest.Presenter.
type ConsolePresenter struct {
	out io.Writer
}

// NewConsolePresenter creates a presenter writing to out.
func NewConsolePresenter(out io.Writer) *ConsolePresenter {
	return &ConsolePresenter{out: out}
}

// RenderCard draws one proposed card with its plan.
func (p *ConsolePresenter) RenderCard(c card.Card) {
	var b strings.Builder

	b.WriteString(titleStyle.Render(c.Title))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s impact  %s  %s\n",
		impactStyle(c.Impact).Render(strings.ToUpper(string(c.Impact))),
		mutedStyle.Render(string(c.Status)),
		mutedStyle.Render(c.ID[:8])))
	if c.Cost != "" {
		b.WriteString(mutedStyle.Render("estimated cost: "+c.Cost) + "\n")
	}
	for i, step := range c.Plan {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
	}

	fmt.Fprintln(p.out, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// RenderResolution reports a reconciled card outcome.
func (p *ConsolePresenter) RenderResolution(c card.Card, success bool) {
	if success {
		fmt.Fprintf(p.out, "%s %s\n",
			successStyle.Render("done:"), c.Title)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n",
		dangerStyle.Render("failed:"), c.Title,
		mutedStyle.Render("(card stays visible for review)"))
}

// Present renders a periodic digest. Satisfies digest.Presenter.
func (p *ConsolePresenter) Present(r digest.Report) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("vigil digest"))
	b.WriteString(mutedStyle.Render("  " + r.GeneratedAt.Format("15:04")))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("focus: %s\n", r.FocusMode))
	b.WriteString(fmt.Sprintf("cards: %d pending, %d in progress, %d deferred, %d completed, %d dismissed\n",
		r.Stats.Pending, r.Stats.InProgress, r.Stats.Deferred, r.Stats.Completed, r.Stats.Dismissed))

	if len(r.HighImpact) > 0 {
		b.WriteString(dangerStyle.Render("needs attention:") + "\n")
		for _, c := range r.HighImpact {
			b.WriteString(fmt.Sprintf("  - %s %s\n", c.Title, mutedStyle.Render(c.ID[:8])))
		}
	}

	fmt.Fprintln(p.out, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}
