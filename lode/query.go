package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/nanoplex/report"
)

// ErrRunNotFound is returned when no records exist for the requested run.
var ErrRunNotFound = errors.New("no records found for run")

// QueryRun returns the records of one kind for runID from the most recent
// snapshot that holds them.
func QueryRun(ctx context.Context, ds lode.Dataset, runID, kind string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHas(snap, "run_id", runID) || !snapshotHas(snap, "record_kind", kind) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse filter; record fields decide.
		var out []map[string]any
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if toString(record["run_id"]) == runID && toString(record["record_kind"]) == kind {
				out = append(out, record)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	return nil, fmt.Errorf("%w: %s (%s)", ErrRunNotFound, runID, kind)
}

// QueryReadCounts rebuilds a run's read count table from the dataset,
// ordered by barcode label.
func QueryReadCounts(ctx context.Context, ds lode.Dataset, runID string) ([]report.Record, error) {
	rows, err := QueryRun(ctx, ds, runID, RecordKindReadCount)
	if err != nil {
		return nil, err
	}
	records := make([]report.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, report.Record{
			Label: toString(row["barcode"]),
			Reads: toInt64(row["reads"]),
			Bases: toInt64(row["bases"]),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Label < records[j].Label })
	return records, nil
}

func snapshotHas(snap *lode.DatasetSnapshot, key, value string) bool {
	for _, f := range snap.Manifest.Files {
		if hasPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches whole key=value segments, so run_id=r1 does not
// match run_id=r10.
func hasPartition(p, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(p, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// JSONL decoding yields float64; the memory store hands back what was written.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
