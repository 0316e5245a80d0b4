package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/report"
)

// Config identifies where one run's records land.
type Config struct {
	// Dataset is the Lode dataset ID (default "nanoplex").
	Dataset string
	// Day is the partition day derived from the run start (YYYY-MM-DD UTC).
	Day string
	// RunID is the run partition.
	RunID string
}

// Validate checks that every partition key is set.
func (c *Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("lode dataset is required")
	case c.Day == "":
		return errors.New("lode day partition is required")
	case c.RunID == "":
		return errors.New("lode run_id partition is required")
	case strings.ContainsAny(c.RunID, "/="):
		return fmt.Errorf("run_id %q is not a valid partition value", c.RunID)
	}
	return nil
}

// Publication is everything published for one run.
type Publication struct {
	Outcome    string
	Records    []report.Record
	Provenance *report.Provenance
	Metrics    metrics.Snapshot
	// Files maps sidecar file names to their contents.
	Files map[string][]byte
}

// Client publishes run records.
type Client interface {
	// Publish writes the publication and returns the number of dataset
	// records written.
	Publish(ctx context.Context, pub *Publication) (int, error)
}

// Publisher is the Lode-backed Client.
type Publisher struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewPublisher opens the dataset through factory. Use lode.NewMemoryFactory
// in tests.
func NewPublisher(cfg Config, factory lode.StoreFactory) (*Publisher, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Publisher{dataset: ds, config: cfg, storeFactory: factory}, nil
}

// Publish writes one read_count record per group, then the provenance and
// metrics records, in a single dataset write. Sidecar files are uploaded
// afterwards in name order.
func (p *Publisher) Publish(ctx context.Context, pub *Publication) (int, error) {
	var total int64
	for _, r := range pub.Records {
		total += r.Reads
	}

	records := make([]any, 0, len(pub.Records)+2)
	for _, r := range pub.Records {
		records = append(records, readCountRecord(r, total, p.config))
	}
	if pub.Provenance != nil {
		records = append(records, provenanceRecord(pub.Provenance, pub.Outcome, p.config))
	}
	records = append(records, metricsRecord(pub.Metrics, p.config))

	if _, err := p.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return 0, WrapWriteError(err, p.PartitionPath())
	}

	names := make([]string, 0, len(pub.Files))
	for name := range pub.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := p.PutFile(ctx, name, pub.Files[name]); err != nil {
			return len(records), err
		}
	}
	return len(records), nil
}

// PutFile uploads a sidecar file into the run's files/ prefix.
func (p *Publisher) PutFile(ctx context.Context, filename string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || filename == ".." {
		return fmt.Errorf("invalid sidecar file name %q", filename)
	}
	p.storeOnce.Do(func() {
		p.store, p.storeErr = p.storeFactory()
	})
	if p.storeErr != nil {
		return WrapInitError(p.storeErr, p.config.Dataset)
	}

	key := path.Join(p.PartitionPath(), "files", filename)
	if err := p.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, key)
	}
	return nil
}

// PartitionPath is the store-relative prefix of this run's partition.
func (p *Publisher) PartitionPath() string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/run_id=%s",
		p.config.Dataset, p.config.Day, p.config.RunID)
}

var _ Client = (*Publisher)(nil)
