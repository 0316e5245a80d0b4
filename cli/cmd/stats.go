package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/cli/render"
	"github.com/pithecene-io/nanoplex/cli/tui"
	"github.com/pithecene-io/nanoplex/lode"
	"github.com/pithecene-io/nanoplex/report"
	"github.com/pithecene-io/nanoplex/runtime"
)

// StatsCommand returns the stats command.
// It reads a read count table from disk or a published run from Lode.
func StatsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Read a published run from Lode instead of a local table",
		},
		&cli.StringFlag{
			Name:  "dataset",
			Usage: "Lode dataset",
			Value: lode.DefaultDataset,
		},
	)
	flags = append(flags, StorageFlags()...)

	return &cli.Command{
		Name:      "stats",
		Usage:     "Show per-barcode read counts",
		ArgsUsage: "<table.tsv | output root>",
		Flags:     flags,
		Action:    statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	var stats *report.Stats
	if runID := c.String("run-id"); runID != "" {
		stats, err = statsFromLode(c.Context, c, runID)
	} else {
		stats, err = statsFromTable(c.Args().First())
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsBarcodes, stats)
	}
	return r.Render(stats)
}

// statsFromTable reads a read count table. A directory is taken as an
// output root and its reports/demux_read_counts.tsv is read.
func statsFromTable(path string) (*report.Stats, error) {
	if path == "" {
		return nil, errors.New("stats requires a table path, an output root or --run-id")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		path = filepath.Join(path, runtime.DirReports, runtime.ReadCountsFile)
	}
	records, err := report.ReadTSV(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return report.NewStats(path, records), nil
}

// statsFromLode reads the read count records of one published run.
func statsFromLode(ctx context.Context, c *cli.Context, runID string) (*report.Stats, error) {
	path := c.String("lode-path")
	if path == "" {
		return nil, errors.New("--run-id requires --lode-path")
	}
	s3cfg := lode.S3Config{
		Region:       c.String("lode-s3-region"),
		Endpoint:     c.String("lode-s3-endpoint"),
		UsePathStyle: c.Bool("lode-s3-path-style"),
	}
	factory, err := lode.NewFactory(ctx, c.String("lode-backend"), path, s3cfg)
	if err != nil {
		return nil, err
	}
	ds, err := lode.NewDataset(c.String("dataset"), factory)
	if err != nil {
		return nil, err
	}
	records, err := lode.QueryReadCounts(ctx, ds, runID)
	if err != nil {
		return nil, err
	}
	return report.NewStats(fmt.Sprintf("lode:%s/%s", ds.ID(), runID), records), nil
}
