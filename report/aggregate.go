package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ListGroups returns the group directory names under root, sorted.
func ListGroups(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list groups in %s: %w", root, err)
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Aggregate counts every group under root using at most workers concurrent
// scans. Records are returned in group-name order regardless of
// completion order.
func Aggregate(ctx context.Context, root string, workers int) ([]Record, error) {
	labels, err := ListGroups(root)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(labels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, label := range labels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := CountGroup(filepath.Join(root, label), label)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
