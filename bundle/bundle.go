// Package bundle locates and provisions the custom barcode bundle: one
// arrangement descriptor and one barcode sequence file.
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ArrangementSuffix marks the arrangement descriptor. Suffixes are compared
// case-insensitively.
const ArrangementSuffix = ".toml"

// SequenceSuffixes are accepted suffixes for the barcode sequence file.
var SequenceSuffixes = []string{".fasta", ".fa"}

// ErrNotFound indicates the bundle tree lacks a required file.
var ErrNotFound = errors.New("barcode bundle incomplete")

// Bundle is the resolved pair of barcode bundle files.
type Bundle struct {
	// Arrangement is the barcode arrangement descriptor.
	Arrangement string
	// Sequences is the barcode sequence file.
	Sequences string
}

// Resolve walks root in lexical order and returns the first arrangement
// descriptor and the first sequence file found. Either missing is an error
// wrapping ErrNotFound.
func Resolve(root string) (Bundle, error) {
	var b Bundle
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if b.Arrangement == "" && strings.HasSuffix(name, ArrangementSuffix) {
			b.Arrangement = path
		}
		if b.Sequences == "" && hasSequenceSuffix(name) {
			b.Sequences = path
		}
		if b.Arrangement != "" && b.Sequences != "" {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to scan barcode bundle %s: %w", root, err)
	}

	var missing []string
	if b.Arrangement == "" {
		missing = append(missing, "arrangement descriptor (*"+ArrangementSuffix+")")
	}
	if b.Sequences == "" {
		missing = append(missing, "sequence file (*"+strings.Join(SequenceSuffixes, ", *")+")")
	}
	if len(missing) > 0 {
		return Bundle{}, fmt.Errorf("%w: no %s under %s", ErrNotFound, strings.Join(missing, " or "), root)
	}
	return b, nil
}

func hasSequenceSuffix(name string) bool {
	for _, s := range SequenceSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
