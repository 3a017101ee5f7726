package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/DrSkyle/depotmap/pkg/engine"
	"github.com/charmbracelet/lipgloss"
)

var (
	summaryTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	summaryLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(22)
	summaryBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF99")).
			Padding(0, 1)
)

// renderSummary formats the end-of-run report.
func renderSummary(r *engine.Report, output string) string {
	res := r.Attribution
	stats := r.Artifacts.Statistics

	rows := [][2]string{
		{"Run", r.RunID},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
		{"Catalog apps", fmt.Sprint(r.CatalogSize)},
		{"Valid depots", fmt.Sprint(res.ValidDepots)},
		{"Attributed", fmt.Sprint(res.Attributed)},
		{"Clustered", fmt.Sprintf("%d in %d groups", res.Clustered, res.SyntheticOwners)},
		{"Dropped", fmt.Sprint(res.Dropped())},
		{"Owners", fmt.Sprintf("%d known, %d unidentified", stats.KnownApps, stats.UnknownApps)},
		{"Scripts written", fmt.Sprint(r.Artifacts.Generated)},
		{"Skipped", fmt.Sprintf("%d unknown, %d by rule", stats.SkippedUnknown, stats.SkippedByRule)},
		{"Quality", fmt.Sprintf("%.1f%%", stats.Quality())},
		{"Output", output},
	}

	var b strings.Builder
	b.WriteString(summaryTitle.Render("DEPOTMAP RUN COMPLETE"))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(summaryLabel.Render(row[0]))
		b.WriteString(row[1])
	}
	return summaryBox.Render(b.String())
}
