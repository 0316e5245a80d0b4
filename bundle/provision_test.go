package bundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zip"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProvisioner_HTTPFetchAndCache(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"custom/arrangement.toml": "[arrangement]\nname = \"16S\"\n",
		"custom/barcodes.fasta":   ">BC01\nAAGAAAGTTGTCGGTGTCTTTGTG\n",
	})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	resources := filepath.Join(t.TempDir(), "resources")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &Provisioner{
		Fetcher: &SchemeFetcher{HTTP: NewHTTPFetcher(5 * time.Second)},
		Now:     func() time.Time { return fixed },
	}

	b, cached, err := p.Provision(context.Background(), srv.URL+"/bundle.zip", resources)
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if cached {
		t.Error("cached = true on first provision, want false")
	}
	if filepath.Base(b.Arrangement) != "arrangement.toml" {
		t.Errorf("Arrangement = %q", b.Arrangement)
	}
	if filepath.Base(b.Sequences) != "barcodes.fasta" {
		t.Errorf("Sequences = %q", b.Sequences)
	}
	if _, err := os.Stat(filepath.Join(resources, ArchiveName)); err != nil {
		t.Errorf("archive not kept: %v", err)
	}

	m, err := ReadMarker(filepath.Join(resources, MarkerName))
	if err != nil || m == nil {
		t.Fatalf("ReadMarker() = %v, %v", m, err)
	}
	if m.Source != srv.URL+"/bundle.zip" {
		t.Errorf("marker Source = %q", m.Source)
	}
	if !m.FetchedAt.Equal(fixed) {
		t.Errorf("marker FetchedAt = %v, want %v", m.FetchedAt, fixed)
	}

	b2, cached, err := p.Provision(context.Background(), srv.URL+"/bundle.zip", resources)
	if err != nil {
		t.Fatalf("second Provision() error = %v", err)
	}
	if !cached {
		t.Error("cached = false on second provision, want true")
	}
	if b2 != b {
		t.Errorf("cached bundle = %+v, want %+v", b2, b)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestProvisioner_SourceChangeRefetches(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.zip")
	second := filepath.Join(dir, "second.zip")
	if err := os.WriteFile(first, buildZip(t, map[string]string{"a.toml": "", "a.fasta": ""}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, buildZip(t, map[string]string{"b.toml": "", "b.fa": ""}), 0o644); err != nil {
		t.Fatal(err)
	}

	resources := filepath.Join(dir, "resources")
	p := &Provisioner{Fetcher: &SchemeFetcher{File: FileFetcher{}}}
	if _, _, err := p.Provision(context.Background(), first, resources); err != nil {
		t.Fatalf("Provision(first) error = %v", err)
	}
	b, cached, err := p.Provision(context.Background(), "file://"+second, resources)
	if err != nil {
		t.Fatalf("Provision(second) error = %v", err)
	}
	if cached {
		t.Error("cached = true after source change, want false")
	}
	if filepath.Base(b.Arrangement) != "b.toml" || filepath.Base(b.Sequences) != "b.fa" {
		t.Errorf("bundle = %+v, want b.toml/b.fa", b)
	}
	if _, err := os.Stat(filepath.Join(resources, ExtractDir, "a.toml")); !os.IsNotExist(err) {
		t.Error("stale extraction not cleared")
	}
}

func TestProvisioner_IncompleteArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bundle.zip")
	if err := os.WriteFile(src, buildZip(t, map[string]string{"only.toml": ""}), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &Provisioner{Fetcher: &SchemeFetcher{File: FileFetcher{}}}
	_, _, err := p.Provision(context.Background(), src, filepath.Join(dir, "resources"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Provision() error = %v, want ErrNotFound", err)
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHTTPFetcher(time.Second).Fetch(context.Background(), srv.URL, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Fetch() error = %v, want HTTP 404", err)
	}
}

type fakeS3 struct {
	bucket, key string
	body        []byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func TestS3Fetcher(t *testing.T) {
	fake := &fakeS3{body: []byte("zipdata")}
	var out bytes.Buffer
	if err := (&S3Fetcher{Client: fake}).Fetch(context.Background(), "s3://refs/barcodes/16S.zip", &out); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if fake.bucket != "refs" || fake.key != "barcodes/16S.zip" {
		t.Errorf("GetObject(%q, %q), want (refs, barcodes/16S.zip)", fake.bucket, fake.key)
	}
	if out.String() != "zipdata" {
		t.Errorf("body = %q, want zipdata", out.String())
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		wantErr     bool
	}{
		{"s3://b/k.zip", "b", "k.zip", false},
		{"s3://b/dir/k.zip", "b", "dir/k.zip", false},
		{"s3://b", "", "", true},
		{"https://b/k", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseS3URL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3URL(%q) = (%q, %q), want (%q, %q)", tt.in, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestSchemeFetcher_Unsupported(t *testing.T) {
	f := &SchemeFetcher{File: FileFetcher{}}
	for _, src := range []string{"ftp://host/x.zip", "s3://b/k"} {
		if err := f.Fetch(context.Background(), src, io.Discard); !errors.Is(err, ErrUnsupportedSource) {
			t.Errorf("Fetch(%q) error = %v, want ErrUnsupportedSource", src, err)
		}
	}
}

func TestExtract_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	if err := os.WriteFile(src, buildZip(t, map[string]string{"../escape.toml": ""}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(src, filepath.Join(dir, "out")); err == nil {
		t.Error("Extract() error = nil, want escape rejection")
	}
}
