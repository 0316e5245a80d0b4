package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pithecene-io/nanoplex/types"
)

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	jobID := "slurm-42"
	l := NewLoggerWithWriter(&types.RunMeta{RunID: "run-001", JobID: &jobID}, &buf)

	l.With("mode", "demux-after").Warn("summary failed", map[string]any{"tool": "dorado"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}

	checks := map[string]string{
		"level":   "warn",
		"message": "summary failed",
		"run_id":  "run-001",
		"job_id":  "slurm-42",
		"mode":    "demux-after",
	}
	for k, want := range checks {
		if got, _ := entry[k].(string); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["tool"] != "dorado" {
		t.Errorf("fields = %v, want tool=dorado", entry["fields"])
	}
}

func TestLogger_OmitsJobIDWhenUnset(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&types.RunMeta{RunID: "run-001"}, &buf)
	l.Sugar().Infof("converted %d units", 3)

	if strings.Contains(buf.String(), "job_id") {
		t.Errorf("unexpected job_id in %q", buf.String())
	}
	if !strings.Contains(buf.String(), "converted 3 units") {
		t.Errorf("missing formatted message in %q", buf.String())
	}
}
