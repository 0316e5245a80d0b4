package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Provenance describes how a run was produced. It is written to
// versions.txt and embedded in the run report.
type Provenance struct {
	GeneratedAt time.Time `json:"generated_at"`
	Host        string    `json:"host"`
	JobID       string    `json:"job_id,omitempty"`
	RunID       string    `json:"run_id"`
	Nanoplex    string    `json:"nanoplex_version"`

	Model       string `json:"model"`
	Mode        string `json:"mode"`
	Device      string `json:"device"`
	Threads     int    `json:"threads"`
	Arrangement string `json:"arrangement"`
	Sequences   string `json:"sequences"`
	BundleURL   string `json:"bundle_source"`

	KeepUnclassified bool   `json:"keep_unclassified"`
	Trim             bool   `json:"trim"`
	SequenceFlag     string `json:"sequence_flag"`
	Compressor       string `json:"compressor"`

	// Tools maps logical tool name to its reported version string.
	Tools map[string]string `json:"tools"`
}

// WriteVersions renders p as "key: value" lines.
func WriteVersions(w io.Writer, p *Provenance) error {
	bw := bufio.NewWriter(w)
	jobID := p.JobID
	if jobID == "" {
		jobID = "none"
	}
	lines := [][2]string{
		{"generated_at", p.GeneratedAt.UTC().Format(time.RFC3339)},
		{"host", p.Host},
		{"job_id", jobID},
		{"run_id", p.RunID},
		{"nanoplex", p.Nanoplex},
		{"model", p.Model},
		{"mode", p.Mode},
		{"device", p.Device},
		{"threads", fmt.Sprint(p.Threads)},
		{"keep_unclassified", fmt.Sprint(p.KeepUnclassified)},
		{"trim", fmt.Sprint(p.Trim)},
		{"bundle_source", p.BundleURL},
		{"arrangement", p.Arrangement},
		{"sequences", p.Sequences},
		{"sequence_flag", p.SequenceFlag},
		{"compressor", p.Compressor},
	}
	for _, kv := range lines {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(p.Tools))
	for name := range p.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(bw, "tool.%s: %s\n", name, p.Tools[name]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteVersionsFile writes versions.txt to path.
func WriteVersionsFile(path string, p *Provenance) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteVersions(f, p)
}
