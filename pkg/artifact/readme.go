package artifact

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// DefaultTopN is the number of owners listed in the README ranking.
	DefaultTopN = 30

	readmeNameWidth = 40
)

var (
	heavyRule = strings.Repeat("=", 80)
	lightRule = strings.Repeat("-", 80)
)

// RenderReadme builds the human-readable run report.
func RenderReadme(generated int, stats Statistics, mapping *Mapping, topN int) []byte {
	var b bytes.Buffer
	p := message.NewPrinter(language.English)

	fmt.Fprintf(&b, "%s\nDEPOT MAPPING - GENERATED SCRIPTS\n%s\n\n", heavyRule, heavyRule)
	p.Fprintf(&b, "Files generated: %d\n", generated)
	p.Fprintf(&b, "Files skipped (unknown): %d\n", stats.SkippedUnknown)
	p.Fprintf(&b, "Files skipped (rules): %d\n", stats.SkippedByRule)
	p.Fprintf(&b, "Owners found: %d\n", stats.Owners())
	p.Fprintf(&b, "  - Known applications: %d\n", stats.KnownApps)
	p.Fprintf(&b, "  - Unidentified groups: %d\n", stats.UnknownApps)
	p.Fprintf(&b, "Total depots: %d\n\n", stats.TotalDepots)

	fmt.Fprintf(&b, "MAPPING QUALITY:\n%s\n", lightRule)
	if stats.Owners() > 0 {
		fmt.Fprintf(&b, "Precision: %.1f%% of owners are known applications\n\n", stats.Quality())
	}

	fmt.Fprintf(&b, "FILE LAYOUT:\n%s\n", lightRule)
	b.WriteString("Each {appid}.lua file contains:\n")
	b.WriteString("  - addappid({appid})          # application id\n")
	b.WriteString("  - addappid({depot},0,\"key\")  # one line per depot with its key\n\n")

	fmt.Fprintf(&b, "TOP %d OWNERS BY DEPOT COUNT:\n%s\n", topN, lightRule)
	for _, r := range mapping.Top(topN) {
		known := "?"
		if r.Known {
			known = "✓"
		}
		status := "Skipped"
		if r.Generated {
			status = "Generated"
		}
		fmt.Fprintf(&b, "[%s] %-10d | %3d depots | [%s] %s\n", known, r.Owner, r.DepotCount, status, truncate(r.Name, readmeNameWidth))
	}

	fmt.Fprintf(&b, "\n%s\n", heavyRule)
	b.WriteString("Legend: [✓] = known application | [?] = unidentified group\n")
	return b.Bytes()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
