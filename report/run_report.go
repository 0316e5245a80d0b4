package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/types"
)

// RunReport is the machine-readable end-of-run document.
type RunReport struct {
	FormatVersion string           `json:"format_version"`
	Outcome       string           `json:"outcome"`
	Provenance    *Provenance      `json:"provenance"`
	Records       []Record         `json:"records"`
	Summary       Summary          `json:"summary"`
	Stages        []types.Stage    `json:"stages"`
	Metrics       metrics.Snapshot `json:"metrics"`
	DurationMS    int64            `json:"duration_ms"`
}

// WriteRunReport writes r as indented JSON to path.
func WriteRunReport(path string, r *RunReport) error {
	if r.FormatVersion == "" {
		r.FormatVersion = types.ReportFormatVersion
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadRunReport loads a run report written by WriteRunReport.
func ReadRunReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run report %s: %w", path, err)
	}
	return &r, nil
}
