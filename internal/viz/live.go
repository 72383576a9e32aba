package viz

import (
	"cmp"
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/stiffnet/internal/experiment"
)

const liveBarWidth = 40

// SpeciesTotal is a species and its abundance summed over all zones.
type SpeciesTotal struct {
	Name  string
	Value float64
}

// ProgressMsg carries a copy of a run's state after a committed interval.
type ProgressMsg struct {
	T, Duration float64
	Attempts    int
	Failures    int
	Zones       int
	Top         []SpeciesTotal
}

// DoneMsg ends a live view. Err is the run's error, if any.
type DoneMsg struct {
	Err error
}

// NewProgressMsg copies what the live view needs out of p. It must run on the
// goroutine that owns the zones.
func NewProgressMsg(p experiment.Progress, top int) ProgressMsg {
	msg := ProgressMsg{T: p.T, Duration: p.Duration, Attempts: p.Attempts, Failures: p.Failures, Zones: len(p.Zones)}
	if len(p.Zones) == 0 {
		return msg
	}

	species := p.Zones[0].Network().Species()
	totals := make([]SpeciesTotal, len(species))
	for i, s := range species {
		totals[i].Name = s.Name
	}
	for _, z := range p.Zones {
		for i, y := range z.Abundances() {
			totals[i].Value += y
		}
	}
	slices.SortStableFunc(totals, func(a, b SpeciesTotal) int {
		return cmp.Compare(b.Value, a.Value)
	})
	if top > 0 && len(totals) > top {
		totals = totals[:top]
	}
	msg.Top = totals
	return msg
}

// Live is a bubbletea model showing the progress of a running experiment.
// The run feeds it ProgressMsg values and finishes with a DoneMsg.
type Live struct {
	method   string
	progress ProgressMsg
	history  map[string][]float64
	done     bool
	err      error
	quit     bool
}

func NewLive(method string) Live {
	return Live{method: method, history: make(map[string][]float64)}
}

func (m Live) Init() tea.Cmd { return nil }

func (m Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}
	case ProgressMsg:
		m.progress = msg
		for _, s := range msg.Top {
			m.history[s.Name] = append(m.history[s.Name], s.Value)
		}
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Err returns the error the run finished with.
func (m Live) Err() error { return m.err }

// Interrupted reports whether the user quit before the run finished.
func (m Live) Interrupted() bool { return m.quit && !m.done }

func (m Live) View() string {
	p := m.progress
	fraction := 0.0
	if p.Duration > 0 {
		fraction = p.T / p.Duration
	}

	status := Subtle.Render("running")
	switch {
	case m.err != nil:
		status = StatusFailed.Render("error: " + m.err.Error())
	case m.done:
		status = StatusOK.Render("done")
	}
	failures := MetricValue.Render(fmt.Sprint(p.Failures))
	if p.Failures > 0 {
		failures = StatusFailed.Render(fmt.Sprint(p.Failures))
	}

	lines := []string{
		Title.Render(fmt.Sprintf("stiffnet %s · %d zones", m.method, p.Zones)),
		fmt.Sprintf("%s %s %s",
			ProgressBar(fraction, liveBarWidth),
			MetricValue.Render(fmt.Sprintf("%.4g", p.T)),
			MetricLabel.Render(fmt.Sprintf("/ %.4g", p.Duration))),
		fmt.Sprintf("%s %s  %s %s  %s %s",
			MetricLabel.Render("attempts"), MetricValue.Render(fmt.Sprint(p.Attempts)),
			MetricLabel.Render("failures"), failures,
			MetricLabel.Render("status"), status),
		Separator(liveBarWidth + 16),
	}
	for _, s := range p.Top {
		lines = append(lines, fmt.Sprintf("%-8s %12.5e  %s", s.Name, s.Value, Sparkline(m.history[s.Name], 24)))
	}
	lines = append(lines, Subtle.Render("q to quit"))
	return Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}
