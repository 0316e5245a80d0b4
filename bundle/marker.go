package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Marker records a completed provisioning so later runs can reuse it.
// Paths are relative to the extraction directory.
type Marker struct {
	Source      string    `msgpack:"source"`
	Arrangement string    `msgpack:"arrangement"`
	Sequences   string    `msgpack:"sequences"`
	FetchedAt   time.Time `msgpack:"fetched_at"`
}

// ReadMarker loads the marker at path. A missing file returns (nil, nil).
func ReadMarker(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle marker: %w", err)
	}
	var m Marker
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode bundle marker: %w", err)
	}
	return &m, nil
}

// WriteMarker encodes m to path.
func WriteMarker(path string, m *Marker) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode bundle marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
