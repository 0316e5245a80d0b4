package toolchain

import (
	"fmt"
	"os/exec"
)

// Locator resolves executables. Availability decides between primary and
// fallback conversion paths and between compressors.
type Locator interface {
	LookPath(name string) (string, error)
}

// PathLocator resolves executables from PATH.
type PathLocator struct{}

// LookPath implements Locator using exec.LookPath.
func (PathLocator) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// StaticLocator resolves from a fixed table; anything absent is unavailable.
type StaticLocator map[string]string

// LookPath implements Locator.
func (s StaticLocator) LookPath(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Available reports whether name resolves through loc.
func Available(loc Locator, name string) bool {
	if name == "" {
		return false
	}
	_, err := loc.LookPath(name)
	return err == nil
}
