package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout of the resources directory.
const (
	ArchiveName = "barcodes.zip"
	ExtractDir  = "barcodes"
	MarkerName  = ".bundle"
)

// Provisioner downloads, extracts and resolves the barcode bundle into a
// resources directory, reusing a previous provisioning of the same source.
type Provisioner struct {
	Fetcher Fetcher
	// Now is the clock used for marker timestamps. Nil uses time.Now.
	Now func() time.Time
}

// Provision returns the resolved bundle under resourcesDir for source.
// The second return value reports whether a cached bundle was reused.
func (p *Provisioner) Provision(ctx context.Context, source, resourcesDir string) (Bundle, bool, error) {
	extractDir := filepath.Join(resourcesDir, ExtractDir)
	markerPath := filepath.Join(resourcesDir, MarkerName)

	if b, ok := p.cached(source, extractDir, markerPath); ok {
		return b, true, nil
	}

	if err := os.MkdirAll(resourcesDir, 0o755); err != nil {
		return Bundle{}, false, fmt.Errorf("failed to create resources directory: %w", err)
	}
	archive := filepath.Join(resourcesDir, ArchiveName)
	if err := p.download(ctx, source, archive); err != nil {
		return Bundle{}, false, err
	}

	if err := os.RemoveAll(extractDir); err != nil {
		return Bundle{}, false, fmt.Errorf("failed to clear %s: %w", extractDir, err)
	}
	if err := Extract(archive, extractDir); err != nil {
		return Bundle{}, false, err
	}

	b, err := Resolve(extractDir)
	if err != nil {
		return Bundle{}, false, err
	}

	m := &Marker{Source: source, FetchedAt: p.now().UTC()}
	if m.Arrangement, err = filepath.Rel(extractDir, b.Arrangement); err != nil {
		return Bundle{}, false, err
	}
	if m.Sequences, err = filepath.Rel(extractDir, b.Sequences); err != nil {
		return Bundle{}, false, err
	}
	if err := WriteMarker(markerPath, m); err != nil {
		return Bundle{}, false, err
	}
	return b, false, nil
}

// cached returns the bundle recorded by the marker when it matches source
// and both files still exist.
func (p *Provisioner) cached(source, extractDir, markerPath string) (Bundle, bool) {
	m, err := ReadMarker(markerPath)
	if err != nil || m == nil || m.Source != source {
		return Bundle{}, false
	}
	b := Bundle{
		Arrangement: filepath.Join(extractDir, m.Arrangement),
		Sequences:   filepath.Join(extractDir, m.Sequences),
	}
	for _, path := range []string{b.Arrangement, b.Sequences} {
		if _, err := os.Stat(path); err != nil {
			return Bundle{}, false
		}
	}
	return b, true
}

func (p *Provisioner) download(ctx context.Context, source, dst string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := p.Fetcher.Fetch(ctx, source, tmp); err != nil {
		return fmt.Errorf("failed to fetch barcode bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (p *Provisioner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
