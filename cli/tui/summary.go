package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/nanoplex/report"
)

// RunSummary is what the run command shows once a run ends.
type RunSummary struct {
	RunID      string
	OutputRoot string
	Duration   time.Duration
	Summary    report.Summary
	// Err is the fatal error, nil on success.
	Err error
}

// RenderRunSummary renders the end-of-run summary. noColor keeps the
// layout and drops colors.
func RenderRunSummary(rs RunSummary, noColor bool) string {
	style := func(s lipgloss.Style) lipgloss.Style {
		if noColor {
			return s.UnsetForeground().UnsetBold()
		}
		return s
	}
	field := func(b *strings.Builder, label, value string) {
		b.WriteString(style(LabelStyle).Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	var b strings.Builder
	if rs.Err != nil {
		b.WriteString(style(ErrorStyle).Render("Run failed"))
	} else {
		b.WriteString(style(SuccessStyle).Render("Run complete"))
	}
	b.WriteString("\n\n")

	field(&b, "Run ID:", rs.RunID)
	field(&b, "Output:", rs.OutputRoot)
	field(&b, "Duration:", rs.Duration.Round(time.Millisecond).String())
	if rs.Err != nil {
		field(&b, "Error:", rs.Err.Error())
		return b.String()
	}

	s := rs.Summary
	field(&b, "Groups:", strconv.Itoa(s.Groups))
	field(&b, "Total reads:", strconv.FormatInt(s.TotalReads, 10))
	if s.HasUnclassified {
		pct := fmt.Sprintf("%d (%.1f%%)", s.UnclassifiedReads, s.UnclassifiedPct)
		field(&b, "Unclassified:", style(UnclassifiedStyle(s.UnclassifiedPct)).Render(pct))
	}

	if len(s.Top) > 0 {
		b.WriteString("\n")
		b.WriteString(style(TitleStyle.UnsetMarginBottom()).Render(fmt.Sprintf("Top %d barcodes", len(s.Top))))
		b.WriteString("\n")
		for i, r := range s.Top {
			fmt.Fprintf(&b, "  %d. %-20s %10d  %5.1f%%\n", i+1, r.Label, r.Reads, report.Percent(r.Reads, s.TotalReads))
		}
	}
	return b.String()
}
