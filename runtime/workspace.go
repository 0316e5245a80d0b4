package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/nanoplex/iox"
)

// Output tree layout relative to the output root.
const (
	DirResources    = "resources"
	DirBasecalled   = "basecalled"
	DirDemux        = "demux"
	DirDemuxTrimmed = "demux_trimmed"
	DirReports      = "reports"
	DirLogs         = "logs"

	ReadCountsFile = "demux_read_counts.tsv"
	VersionsFile   = "versions.txt"
	RunReportFile  = "run_report.json"

	scratchPrefix = ".nanoplex-scratch-"
)

// ResultDirs are the output directories whose presence marks a previous
// run. The resources cache and logs are not results.
var ResultDirs = []string{DirBasecalled, DirDemux, DirDemuxTrimmed, DirReports}

// CheckOutputRoot guards results of a previous run. Without force a
// populated result directory is an ErrOutputCollision and nothing on disk
// changes. With force the result directories are removed.
func CheckOutputRoot(root string, force bool) error {
	var populated []string
	for _, d := range ResultDirs {
		has, err := iox.DirHasEntries(filepath.Join(root, d))
		if err != nil {
			return newError(ErrConfiguration, "check output root", err)
		}
		if has {
			populated = append(populated, d)
		}
	}
	if len(populated) == 0 {
		return nil
	}
	if !force {
		return newError(ErrOutputCollision, "check output root",
			fmt.Errorf("%s already contains results in %v; pass --force to overwrite", root, populated))
	}
	for _, d := range populated {
		if err := os.RemoveAll(filepath.Join(root, d)); err != nil {
			return newError(ErrConfiguration, "clear previous results", err)
		}
	}
	return nil
}

// Scratch is a run-exclusive directory for intermediates.
type Scratch struct {
	Dir string
}

// NewScratch creates base/.nanoplex-scratch-<runID>.
func NewScratch(base, runID string) (*Scratch, error) {
	dir := filepath.Join(base, scratchPrefix+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch %s: %w", dir, err)
	}
	return &Scratch{Dir: dir}, nil
}

// Path joins elem under the scratch directory.
func (s *Scratch) Path(elem ...string) string {
	return filepath.Join(append([]string{s.Dir}, elem...)...)
}

// Remove deletes the scratch directory and everything in it.
func (s *Scratch) Remove() error {
	return os.RemoveAll(s.Dir)
}
