package report

import "strconv"

// Stats is a read count table with its summary. It is the single payload
// behind every "nanoplex stats" output format.
type Stats struct {
	Source  string   `json:"source"`
	Summary Summary  `json:"summary"`
	Records []Record `json:"records"`
}

// NewStats summarizes records read from source.
func NewStats(source string, records []Record) *Stats {
	if records == nil {
		records = []Record{}
	}
	return &Stats{Source: source, Summary: Summarize(records), Records: records}
}

// Table returns the records as rows with each group's share of all reads.
func (s *Stats) Table() (header []string, rows [][]string) {
	header = []string{"barcode", "reads", "bases", "pct"}
	rows = make([][]string, 0, len(s.Records))
	for _, r := range s.Records {
		rows = append(rows, []string{
			r.Label,
			strconv.FormatInt(r.Reads, 10),
			strconv.FormatInt(r.Bases, 10),
			strconv.FormatFloat(Percent(r.Reads, s.Summary.TotalReads), 'f', 1, 64),
		})
	}
	return header, rows
}
