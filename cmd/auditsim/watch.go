package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/auditsim/pkg/simulation"
)

const pollRate = 250 * time.Millisecond

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mainStyle   = lipgloss.NewStyle().MarginLeft(1)
	statusStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

type tickMsg time.Time

type simDoneMsg struct{}

// progressSource is what the view polls.
type progressSource interface {
	Progress() simulation.Progress
}

type watchModel struct {
	source   progressSource
	summary  string
	spinner  spinner.Model
	bar      progress.Model
	snapshot simulation.Progress
	width    int
	done     bool
	aborted  bool
}

func newWatchModel(src progressSource, summary string) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return watchModel{
		source:  src,
		summary: summary,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		width:   80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.aborted = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.snapshot = m.source.Progress()
		if m.snapshot.Done {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()

	case simDoneMsg:
		m.snapshot = m.source.Progress()
		m.done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-10, 80)
	}
	return m, nil
}

func (m watchModel) View() string {
	p := m.snapshot
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("auditsim") + "\n")
	sb.WriteString(subtleStyle.Render(m.summary) + "\n\n")

	status := m.spinner.View() + " " + statusStyle.Render("running")
	if m.done {
		status = okStyle.Render("done")
	}
	sb.WriteString(fmt.Sprintf("%s  %s\n", status, infoStyle.Render(p.SimNow.Format("Mon 2006-01-02 15:04:05"))))
	sb.WriteString(m.bar.ViewAs(p.Fraction) + "\n\n")

	var body strings.Builder
	fmt.Fprintf(&body, "agents    %d running / %d\n", p.Running, p.Agents)
	fmt.Fprintf(&body, "actions   %d", p.Actions)
	if p.Failures > 0 {
		fmt.Fprintf(&body, "  %s", errorStyle.Render(fmt.Sprintf("%d failed", p.Failures)))
	}
	fmt.Fprintf(&body, "\nin flight %d\n", p.InFlight)
	fmt.Fprintf(&body, "scenarios %d assigned, %d in progress, %d completed, %d aborted\n",
		p.Scenarios.Assigned, p.Scenarios.InProgress, p.Scenarios.Completed, p.Scenarios.Aborted)

	roles := make([]string, 0, len(p.ByRole))
	for r := range p.ByRole {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		fmt.Fprintf(&body, "  %-10s %d\n", r, p.ByRole[r])
	}
	sb.WriteString(paneStyle.Render(strings.TrimRight(body.String(), "\n")) + "\n")
	sb.WriteString(subtleStyle.Render("q to stop") + "\n")

	return mainStyle.Render(sb.String())
}
