package runtime

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pithecene-io/nanoplex/types"
)

// Retain reports whether a unit with label is kept. Labels containing the
// unclassified marker are dropped unless keepUnclassified is set.
func Retain(label string, keepUnclassified bool) bool {
	return keepUnclassified || !strings.Contains(label, types.UnclassifiedMarker)
}

// FilterUnits splits units into kept and dropped, preserving order.
func FilterUnits(units []types.Unit, keepUnclassified bool) (kept, dropped []types.Unit) {
	for _, u := range units {
		if Retain(u.Label, keepUnclassified) {
			kept = append(kept, u)
		} else {
			dropped = append(dropped, u)
		}
	}
	return kept, dropped
}

// UnitLabel derives the barcode label from a unit file name.
// Kit prefixes are stripped: "SQK-NBD114-24_barcode01.bam" -> "barcode01".
func UnitLabel(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if i := strings.LastIndex(stem, "_"); i >= 0 && i < len(stem)-1 {
		stem = stem[i+1:]
	}
	return stem
}

// ListUnits finds every BAM under dir, sorted by path.
func ListUnits(dir string) ([]types.Unit, error) {
	var units []types.Unit
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".bam") {
			return nil
		}
		units = append(units, types.Unit{Label: UnitLabel(path), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list alignment units in %s: %w", dir, err)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

// conversionJob maps one unit to its output file.
type conversionJob struct {
	unit types.Unit
	dst  string
}

// planConversions assigns each unit an output under root/<label>/.
// The first unit of a label writes <label>.fastq.gz; further units of the
// same label write <label>.<n>.fastq.gz into the same group.
func planConversions(units []types.Unit, root string) []conversionJob {
	seen := make(map[string]int, len(units))
	jobs := make([]conversionJob, 0, len(units))
	for _, u := range units {
		seen[u.Label]++
		name := u.Label + ".fastq.gz"
		if n := seen[u.Label]; n > 1 {
			name = fmt.Sprintf("%s.%d.fastq.gz", u.Label, n)
		}
		jobs = append(jobs, conversionJob{unit: u, dst: filepath.Join(root, u.Label, name)})
	}
	return jobs
}
