package viz

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/stiffnet/internal/experiment"
	"github.com/san-kum/stiffnet/internal/storage"
)

// Metrics renders name/value pairs sorted by name.
func Metrics(metrics map[string]float64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = MetricLabel.Render(fmt.Sprintf("%-20s", name)) + MetricValue.Render(fmt.Sprintf("%.6g", metrics[name]))
	}
	return strings.Join(lines, "\n")
}

type abundance struct {
	species string
	value   float64
	history []float64
}

// Summary renders the outcome of a run: step statistics, metrics and, per
// zone, the top species by final abundance with their histories.
func Summary(runID string, result *experiment.Result, top int) string {
	var b strings.Builder

	status := StatusOK.Render("ok")
	if result.Failures > 0 {
		status = StatusFailed.Render(fmt.Sprintf("%d failed attempts", result.Failures))
	}
	b.WriteString(HeaderStyle.Render("run "+runID) + "\n")
	fmt.Fprintf(&b, "%s %d  %s %s\n",
		MetricLabel.Render("attempts"), result.Attempts,
		MetricLabel.Render("status"), status)
	if len(result.Metrics) > 0 {
		b.WriteString(Metrics(result.Metrics) + "\n")
	}
	if len(result.Times) == 0 {
		return b.String()
	}

	last := len(result.Times) - 1
	for zi, labels := range result.Zones {
		rows := make([]abundance, len(result.Species))
		for si, name := range result.Species {
			hist := make([]float64, len(result.Times))
			for ti := range result.Times {
				hist[ti] = result.Abundances[ti][zi][si]
			}
			rows[si] = abundance{species: name, value: result.Abundances[last][zi][si], history: hist}
		}
		slices.SortStableFunc(rows, func(a, b abundance) int {
			return cmp.Compare(b.value, a.value)
		})
		if top > 0 && len(rows) > top {
			rows = rows[:top]
		}

		lines := []string{Title.Render("zone " + storage.ZoneKey(labels))}
		for _, r := range rows {
			lines = append(lines, fmt.Sprintf("%-8s %12.5e  %s", r.species, r.value, Sparkline(r.history, 24)))
		}
		b.WriteString(Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n")
	}
	return b.String()
}

// Runs renders stored run metadata as a table.
func Runs(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return Subtle.Render("no runs found")
	}
	lines := []string{HeaderStyle.Render(fmt.Sprintf("%-32s %-12s %-20s %10s %10s %6s %8s", "ID", "METHOD", "TIME", "DURATION", "DT", "ZONES", "FAILED"))}
	for _, r := range runs {
		lines = append(lines, fmt.Sprintf("%-32s %-12s %-20s %10.4g %10.4g %6d %8d",
			r.ID, r.Method, r.Timestamp.Format("2006-01-02 15:04:05"), r.Duration, r.Dt, len(r.Labels), r.Failures))
	}
	return strings.Join(lines, "\n")
}
