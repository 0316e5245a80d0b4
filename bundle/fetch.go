package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Fetcher copies the archive identified by source into w.
type Fetcher interface {
	Fetch(ctx context.Context, source string, w io.Writer) error
}

// HTTPFetcher downloads archives over http(s).
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "nanoplex")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", source, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("failed to download %s: HTTP %d", source, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", source, err)
	}
	return nil
}

// S3GetObjectAPI is the subset of the S3 client used for fetching.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads archives from s3://bucket/key sources.
type S3Fetcher struct {
	Client S3GetObjectAPI
}

// NewS3Fetcher creates an S3Fetcher using the AWS default credential chain.
func NewS3Fetcher(ctx context.Context, region string) (*S3Fetcher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Fetcher{Client: s3.NewFromConfig(awsConfig)}, nil
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, source string, w io.Writer) error {
	bucket, key, err := ParseS3URL(source)
	if err != nil {
		return err
	}
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(source string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(source, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", source)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must be s3://bucket/key, got %q", source)
	}
	return bucket, key, nil
}

// FileFetcher copies archives from the local filesystem.
type FileFetcher struct{}

// Fetch implements Fetcher. Accepts plain paths and file:// URLs.
func (FileFetcher) Fetch(_ context.Context, source string, w io.Writer) error {
	path := source
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return fmt.Errorf("invalid file url %q: %w", source, err)
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bundle archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// SchemeFetcher dispatches to a Fetcher by source scheme.
// A nil S3 fetcher makes s3:// sources an error.
type SchemeFetcher struct {
	HTTP Fetcher
	S3   Fetcher
	File Fetcher
}

// ErrUnsupportedSource indicates a source scheme with no configured fetcher.
var ErrUnsupportedSource = errors.New("unsupported bundle source")

// Fetch implements Fetcher.
func (f *SchemeFetcher) Fetch(ctx context.Context, source string, w io.Writer) error {
	var inner Fetcher
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		inner = f.HTTP
	case strings.HasPrefix(source, "s3://"):
		inner = f.S3
	case strings.Contains(source, "://") && !strings.HasPrefix(source, "file://"):
		inner = nil
	default:
		inner = f.File
	}
	if inner == nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	return inner.Fetch(ctx, source, w)
}
