// Package lode publishes run records to a Lode dataset.
//
// Records are JSONL rows under a Hive layout keyed by day, run_id and
// record_kind. Report files are uploaded next to them as sidecar files.
// Publishing is optional and best effort; a run's on-disk report is
// always authoritative.
package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "nanoplex"

// PartitionKeys is the Hive layout of the dataset, outermost first.
var PartitionKeys = []string{"day", "run_id", "record_kind"}

// DeriveDay computes the day partition from the run start time (UTC).
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// NewDataset opens the dataset with the layout and codec used for both
// writing and reading.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is required.
	Bucket string
	Prefix string
	// Region is optional; the default AWS chain applies when empty.
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle puts the bucket in the path instead of the host.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(path, "s3://"), "/")
	return bucket, strings.TrimSuffix(prefix, "/")
}

// NewS3Factory builds a store factory backed by S3 using the default AWS
// credential chain.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}

// Backends accepted by NewFactory.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// NewFactory selects a store factory by backend name. path is a directory
// for fs and "bucket/prefix" for s3.
func NewFactory(ctx context.Context, backend, path string, s3cfg S3Config) (lode.StoreFactory, error) {
	switch backend {
	case BackendFS, "":
		if path == "" {
			return nil, errors.New("fs backend requires a path")
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create lode root: %w", err)
		}
		return lode.NewFSFactory(path), nil
	case BackendS3:
		s3cfg.Bucket, s3cfg.Prefix = ParseS3Path(path)
		return NewS3Factory(ctx, s3cfg)
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", backend)
	}
}
