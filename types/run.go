// Package types defines core domain types for the nanoplex pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RunMeta contains run identity.
type RunMeta struct {
	// RunID is the run-unique identifier. Keys the scratch area and log file.
	RunID string
	// JobID is the scheduler job identifier, if any (e.g. SLURM_JOB_ID).
	JobID *string
}

// Validate checks that the run identity is usable.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if strings.ContainsAny(r.RunID, `/\`) {
		return fmt.Errorf("run_id must not contain path separators: %q", r.RunID)
	}
	return nil
}

// Mode selects the pipeline topology.
type Mode string

const (
	// ModeDemuxAfter basecalls into one merged BAM, then demultiplexes it.
	ModeDemuxAfter Mode = "demux-after"
	// ModeDemuxDuring basecalls with inline demultiplexing in a single pass.
	ModeDemuxDuring Mode = "demux-during"
)

// ParseMode parses a mode selector, returning an error for unknown values.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDemuxAfter:
		return ModeDemuxAfter, nil
	case ModeDemuxDuring:
		return ModeDemuxDuring, nil
	default:
		return "", fmt.Errorf("invalid mode: %q (must be %s or %s)", s, ModeDemuxAfter, ModeDemuxDuring)
	}
}

// ToolPaths holds the executables the pipeline shells out to.
// Empty values are resolved from PATH by name.
type ToolPaths struct {
	Basecaller string
	Samtools   string
	Pigz       string
	Gzip       string
	Cutadapt   string
}

// DefaultToolPaths returns the conventional executable names.
func DefaultToolPaths() ToolPaths {
	return ToolPaths{
		Basecaller: "dorado",
		Samtools:   "samtools",
		Pigz:       "pigz",
		Gzip:       "gzip",
		Cutadapt:   "cutadapt",
	}
}

// PrimerSet configures the optional primer trimming stage.
type PrimerSet struct {
	Forward   string
	Reverse   string
	MinLength int
}

// DefaultPrimerSet returns the full-length 16S 27F/1492R pair.
func DefaultPrimerSet() PrimerSet {
	return PrimerSet{
		Forward:   "AGAGTTTGATCMTGGCTCAG",
		Reverse:   "GGTTACCTTGTTACGACTT",
		MinLength: 1000,
	}
}

// FallbackColumns are the zero-based column positions read from the
// basecaller's tabular summary when reconstructing FASTQ without a converter.
type FallbackColumns struct {
	ID       int
	Sequence int
	Quality  int
}

// DefaultFallbackColumns returns the default summary column positions.
func DefaultFallbackColumns() FallbackColumns {
	return FallbackColumns{ID: 1, Sequence: 2, Quality: 3}
}

// Validate checks column positions are usable.
func (f FallbackColumns) Validate() error {
	if f.ID < 0 || f.Sequence < 0 || f.Quality < 0 {
		return fmt.Errorf("fallback columns must be >= 0, got id=%d sequence=%d quality=%d", f.ID, f.Sequence, f.Quality)
	}
	if f.Sequence == f.Quality {
		return errors.New("fallback sequence and quality columns must differ")
	}
	return nil
}

// RunConfig is the resolved, immutable run configuration.
// Built once by the CLI layer and passed by value afterwards.
type RunConfig struct {
	RunMeta RunMeta

	// InputDir holds the raw signal files.
	InputDir string
	// OutputRoot is the single-writer output tree.
	OutputRoot string
	// Model is the basecalling model identifier.
	Model string

	Threads int
	GPUs    int

	// KeepUnclassified retains the "unclassified" demux unit.
	KeepUnclassified bool
	Mode             Mode
	// Trim enables the primer trimming stage.
	Trim bool
	// Force allows overwriting results of a previous run.
	Force bool

	// ScratchRoot is fast local storage for intermediates.
	// Empty falls back to OutputRoot.
	ScratchRoot string
	// BundleSource is where the barcode bundle archive is fetched from.
	BundleSource string

	Tools    ToolPaths
	Primers  PrimerSet
	Fallback FallbackColumns
}

// Validate checks field-level configuration rules.
// Filesystem preconditions are checked by the orchestrator.
func (c *RunConfig) Validate() error {
	if err := c.RunMeta.Validate(); err != nil {
		return err
	}
	if c.InputDir == "" {
		return errors.New("input directory is required")
	}
	if c.OutputRoot == "" {
		return errors.New("output directory is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.GPUs < 0 {
		return fmt.Errorf("gpus must be >= 0, got %d", c.GPUs)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.BundleSource == "" {
		return errors.New("barcode bundle source is required")
	}
	if c.Trim {
		if c.Primers.Forward == "" || c.Primers.Reverse == "" {
			return errors.New("trimming requires forward and reverse primers")
		}
		if c.Primers.MinLength < 0 {
			return fmt.Errorf("primer min length must be >= 0, got %d", c.Primers.MinLength)
		}
	}
	return c.Fallback.Validate()
}

// Device returns the basecaller device selector for the configured GPU count.
func (c *RunConfig) Device() string {
	if c.GPUs <= 0 {
		return "cpu"
	}
	ids := make([]string, c.GPUs)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return "cuda:" + strings.Join(ids, ",")
}

// ScratchBase returns the directory under which the run's scratch area lives.
func (c *RunConfig) ScratchBase() string {
	if c.ScratchRoot != "" {
		return c.ScratchRoot
	}
	return c.OutputRoot
}
