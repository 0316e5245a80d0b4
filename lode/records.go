package lode

import (
	"time"

	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/report"
)

// Record kinds, also the innermost partition key.
const (
	RecordKindReadCount  = "read_count"
	RecordKindProvenance = "provenance"
	RecordKindMetrics    = "metrics"
)

// Lode's Hive layout reads partition values from map records, so every
// record carries day, run_id and record_kind.
func baseRecord(kind string, cfg Config) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"day":         cfg.Day,
		"run_id":      cfg.RunID,
	}
}

func readCountRecord(r report.Record, total int64, cfg Config) map[string]any {
	m := baseRecord(RecordKindReadCount, cfg)
	m["barcode"] = r.Label
	m["reads"] = r.Reads
	m["bases"] = r.Bases
	m["pct"] = report.Percent(r.Reads, total)
	m["unclassified"] = report.IsUnclassified(r.Label)
	return m
}

func provenanceRecord(p *report.Provenance, outcome string, cfg Config) map[string]any {
	m := baseRecord(RecordKindProvenance, cfg)
	m["outcome"] = outcome
	m["generated_at"] = p.GeneratedAt.UTC().Format(time.RFC3339)
	m["host"] = p.Host
	if p.JobID != "" {
		m["job_id"] = p.JobID
	}
	m["nanoplex_version"] = p.Nanoplex
	m["model"] = p.Model
	m["mode"] = p.Mode
	m["device"] = p.Device
	m["threads"] = p.Threads
	m["bundle_source"] = p.BundleURL
	m["keep_unclassified"] = p.KeepUnclassified
	m["trim"] = p.Trim
	m["compressor"] = p.Compressor
	tools := make(map[string]any, len(p.Tools))
	for k, v := range p.Tools {
		tools[k] = v
	}
	m["tools"] = tools
	return m
}

func metricsRecord(s metrics.Snapshot, cfg Config) map[string]any {
	m := baseRecord(RecordKindMetrics, cfg)
	m["tool_invocations"] = countsToAny(s.ToolInvocations)
	m["tool_failures"] = countsToAny(s.ToolFailures)
	m["units_produced"] = s.UnitsProduced
	m["units_dropped"] = s.UnitsDropped
	m["units_converted"] = s.UnitsConverted
	m["fallback_conversions"] = s.FallbackConversions
	m["fallback_failures"] = s.FallbackFailures
	m["groups_counted"] = s.GroupsCounted
	m["best_effort_failures"] = s.BestEffortFailures
	m["mode"] = s.Mode
	m["model"] = s.Model
	return m
}

func countsToAny(in map[string]int64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
