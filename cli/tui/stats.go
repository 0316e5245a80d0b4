package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/nanoplex/report"
)

// StatsModel is a Bubble Tea model for the per-barcode read count view.
type StatsModel struct {
	stats    *report.Stats
	table    table.Model
	byReads  bool
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates the stats view for s.
func NewStatsModel(s *report.Stats) StatsModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Barcode", Width: 24},
			{Title: "Reads", Width: 12},
			{Title: "Bases", Width: 14},
			{Title: "%", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(min(len(s.Records)+1, 20)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#FFFFFF")).Background(primaryColor)
	t.SetStyles(styles)

	m := StatsModel{stats: s, table: t}
	m.table.SetRows(m.rows())
	return m
}

// rows returns the table rows in file order, or by descending reads when
// sorting is on.
func (m StatsModel) rows() []table.Row {
	records := append([]report.Record(nil), m.stats.Records...)
	if m.byReads {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Reads > records[j].Reads })
	}
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, table.Row{
			r.Label,
			strconv.FormatInt(r.Reads, 10),
			strconv.FormatInt(r.Bases, 10),
			strconv.FormatFloat(report.Percent(r.Reads, m.stats.Summary.TotalReads), 'f', 1, 64),
		})
	}
	return rows
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Sort):
			m.byReads = !m.byReads
			m.table.SetRows(m.rows())
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Barcode read counts"))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Source:") + " " + ValueStyle.Render(m.stats.Source))
	b.WriteString("\n\n")
	b.WriteString(summaryBoxes(m.stats.Summary))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())

	order := "file order"
	if m.byReads {
		order = "by reads"
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(fmt.Sprintf("↑/↓ scroll • s toggle sort (%s) • q quit", order)))
	return b.String()
}

func summaryBoxes(s report.Summary) string {
	pct := strconv.FormatFloat(s.UnclassifiedPct, 'f', 1, 64) + "%"
	return lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Reads", strconv.FormatInt(s.TotalReads, 10), highlightColor),
		statBox("Bases", strconv.FormatInt(s.TotalBases, 10), highlightColor),
		statBox("Groups", strconv.Itoa(s.Groups), successColor),
		statBox("Unclassified", pct, unclassifiedColor(s.UnclassifiedPct)),
	)
}

// RunStatsTUI runs the stats view until the user quits.
func RunStatsTUI(data any) error {
	s, ok := data.(*report.Stats)
	if !ok {
		return fmt.Errorf("invalid data type for %s: %T", ViewStatsBarcodes, data)
	}
	p := tea.NewProgram(NewStatsModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
