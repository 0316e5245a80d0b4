package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/adapter"
	"github.com/pithecene-io/nanoplex/cli/config"
	"github.com/pithecene-io/nanoplex/lode"
	"github.com/pithecene-io/nanoplex/log"
	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/runtime"
)

// storageChoice holds resolved Lode storage configuration.
type storageChoice struct {
	dataset string
	backend string // "fs" or "s3"
	path    string // fs: directory, s3: bucket/prefix
	s3      lode.S3Config
}

// storageChoiceFrom resolves the storage flags over the config file.
func storageChoiceFrom(c *cli.Context, fc *config.Config) (storageChoice, error) {
	sc := fc.Storage
	choice := storageChoice{
		dataset: sc.Dataset,
		backend: stringOpt(c, "lode-backend", sc.Backend),
		path:    stringOpt(c, "lode-path", sc.Path),
		s3: lode.S3Config{
			Region:       stringOpt(c, "lode-s3-region", sc.Region),
			Endpoint:     stringOpt(c, "lode-s3-endpoint", sc.Endpoint),
			UsePathStyle: boolOpt(c, "lode-s3-path-style", sc.S3PathStyle),
		},
	}
	if choice.dataset == "" {
		choice.dataset = lode.DefaultDataset
	}
	switch choice.backend {
	case lode.BackendFS, lode.BackendS3:
	default:
		return storageChoice{}, fmt.Errorf("unknown lode-backend: %s (must be fs or s3)", choice.backend)
	}
	return choice, nil
}

// enabled reports whether run records should be published.
func (s storageChoice) enabled() bool {
	return s.path != ""
}

// publishRun writes the run's records and report files to Lode and returns
// the partition path they landed under.
func publishRun(
	ctx context.Context,
	choice storageChoice,
	runID string,
	start time.Time,
	result *runtime.Result,
	collector *metrics.Collector,
	logger *log.Logger,
) (string, error) {
	factory, err := lode.NewFactory(ctx, choice.backend, choice.path, choice.s3)
	if err != nil {
		return "", err
	}
	pub, err := lode.NewPublisher(lode.Config{
		Dataset: choice.dataset,
		Day:     lode.DeriveDay(start),
		RunID:   runID,
	}, factory)
	if err != nil {
		return "", err
	}

	files, err := reportFiles(result)
	if err != nil {
		return "", err
	}

	client := lode.NewInstrumentedClient(pub, collector)
	n, err := client.Publish(ctx, &lode.Publication{
		Outcome:    adapter.OutcomeSuccess,
		Records:    result.Records,
		Provenance: result.Provenance,
		Metrics:    collector.Snapshot(),
		Files:      files,
	})
	if err != nil {
		return "", err
	}

	logger.Info("published run records", map[string]any{
		"backend":   choice.backend,
		"dataset":   choice.dataset,
		"records":   n,
		"partition": pub.PartitionPath(),
	})
	return pub.PartitionPath(), nil
}

// reportFiles reads the written report files for upload.
func reportFiles(result *runtime.Result) (map[string][]byte, error) {
	files := make(map[string][]byte)
	for _, p := range []string{result.TablePath, result.VersionsPath, result.RunReportPath} {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read report file: %w", err)
		}
		files[filepath.Base(p)] = data
	}
	return files, nil
}
