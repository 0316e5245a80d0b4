package report

import (
	"math"
	"sort"
	"strings"

	"github.com/pithecene-io/nanoplex/types"
)

// TopN is the number of groups listed in the summary.
const TopN = 5

// Summary holds presentation-only statistics derived from the table.
type Summary struct {
	TotalReads int64 `json:"total_reads"`
	TotalBases int64 `json:"total_bases"`
	Groups     int   `json:"groups"`

	// HasUnclassified reports whether an unclassified group is in the table.
	HasUnclassified   bool    `json:"has_unclassified"`
	UnclassifiedReads int64   `json:"unclassified_reads"`
	UnclassifiedPct   float64 `json:"unclassified_pct"`

	Top []Record `json:"top"`
}

// IsUnclassified reports whether label marks an unclassified group.
func IsUnclassified(label string) bool {
	return strings.Contains(label, types.UnclassifiedMarker)
}

// Summarize derives summary statistics from records in table order.
func Summarize(records []Record) Summary {
	s := Summary{Groups: len(records)}
	var classified []Record
	for _, r := range records {
		s.TotalReads += r.Reads
		s.TotalBases += r.Bases
		if IsUnclassified(r.Label) {
			s.HasUnclassified = true
			s.UnclassifiedReads += r.Reads
			continue
		}
		classified = append(classified, r)
	}
	s.UnclassifiedPct = Percent(s.UnclassifiedReads, s.TotalReads)

	sort.SliceStable(classified, func(i, j int) bool {
		return classified[i].Reads > classified[j].Reads
	})
	if len(classified) > TopN {
		classified = classified[:TopN]
	}
	s.Top = classified
	return s
}

// Percent returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
