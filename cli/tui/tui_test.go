package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/nanoplex/report"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewStatsBarcodes, true},
		{"stats_runs", false},
		{"version", false},
		{"run", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("version", nil); err == nil {
		t.Error("expected error for unsupported view type")
	}
}

func TestRunStatsTUI_InvalidData(t *testing.T) {
	if err := RunStatsTUI("not stats"); err == nil {
		t.Error("expected error for wrong payload type")
	}
}

func testStats() *report.Stats {
	return report.NewStats("reports/demux_read_counts.tsv", []report.Record{
		{Label: "barcode01", Reads: 2, Bases: 20},
		{Label: "barcode02", Reads: 9, Bases: 90},
		{Label: "unclassified", Reads: 1, Bases: 10},
	})
}

func TestStatsModel_SortToggle(t *testing.T) {
	m := NewStatsModel(testStats())
	if got := m.rows()[0][0]; got != "barcode01" {
		t.Errorf("first row = %q, want file order", got)
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = updated.(StatsModel)
	if !m.byReads {
		t.Fatal("s should enable sorting by reads")
	}
	if got := m.rows()[0][0]; got != "barcode02" {
		t.Errorf("first row = %q, want barcode02 when sorted", got)
	}
}

func TestStatsModel_Quit(t *testing.T) {
	m := NewStatsModel(testStats())
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if view := updated.(StatsModel).View(); view != "" {
		t.Errorf("View() after quit = %q, want empty", view)
	}
}

func TestStatsModel_View(t *testing.T) {
	view := NewStatsModel(testStats()).View()
	for _, want := range []string{"Barcode read counts", "reports/demux_read_counts.tsv", "barcode02", "8.3%"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestRenderRunSummary(t *testing.T) {
	out := RenderRunSummary(RunSummary{
		RunID:      "r1",
		OutputRoot: "/data/out",
		Duration:   1500 * time.Millisecond,
		Summary:    testStats().Summary,
	}, true)

	for _, want := range []string{"Run complete", "r1", "1.5s", "Total reads:", "12", "1 (8.3%)", "Top 2 barcodes", "1. barcode02"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("noColor summary contains ANSI escapes")
	}
}

func TestRenderRunSummary_Failure(t *testing.T) {
	out := RenderRunSummary(RunSummary{RunID: "r2", Err: errors.New("basecaller exited 137")}, true)
	if !strings.Contains(out, "Run failed") || !strings.Contains(out, "basecaller exited 137") {
		t.Errorf("failure summary = %q", out)
	}
	if strings.Contains(out, "Top") {
		t.Error("failure summary should not list barcodes")
	}
}

func TestRenderRunSummary_NoUnclassified(t *testing.T) {
	s := report.Summarize([]report.Record{{Label: "barcode01", Reads: 4}})
	out := RenderRunSummary(RunSummary{RunID: "r3", Summary: s}, true)
	if strings.Contains(out, "Unclassified:") {
		t.Errorf("summary should omit the unclassified line:\n%s", out)
	}
}
