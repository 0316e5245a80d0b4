// Package convert turns binary alignment units into gzip-compressed FASTQ.
//
// The primary path pipes the external converter into a compressor. When the
// converter is unavailable and the caller allows it, a fallback rebuilds
// FASTQ from the basecaller's per-read tabular summary.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/nanoplex/log"
	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// ErrConverterUnavailable indicates the converter is missing on a path
// where fallback is disallowed.
var ErrConverterUnavailable = errors.New("converter unavailable")

// ErrFallbackFailed indicates the summary-based fallback could not produce
// output. Callers that allowed fallback treat it as non-fatal.
var ErrFallbackFailed = errors.New("fallback conversion failed")

// Method records how a unit was converted.
type Method string

const (
	MethodPrimary  Method = "primary"
	MethodFallback Method = "fallback"
)

// Config configures an Engine.
type Config struct {
	Runner    toolchain.Runner
	Locator   toolchain.Locator
	Tools     types.ToolPaths
	Threads   int
	Columns   types.FallbackColumns
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Engine converts alignment units. Safe for concurrent use.
type Engine struct {
	runner       toolchain.Runner
	tools        types.ToolPaths
	threads      int
	columns      types.FallbackColumns
	logger       *log.Logger
	collector    *metrics.Collector
	hasConverter bool
	compressor   compressor
}

// NewEngine resolves tool availability once and returns an Engine.
func NewEngine(cfg Config) *Engine {
	loc := cfg.Locator
	if loc == nil {
		loc = toolchain.PathLocator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	threads := max(cfg.Threads, 1)
	return &Engine{
		runner:       cfg.Runner,
		tools:        cfg.Tools,
		threads:      threads,
		columns:      cfg.Columns,
		logger:       logger,
		collector:    cfg.Collector,
		hasConverter: toolchain.Available(loc, cfg.Tools.Samtools),
		compressor:   selectCompressor(loc, cfg.Tools, threads),
	}
}

// ConverterAvailable reports whether the primary path can run.
func (e *Engine) ConverterAvailable() bool {
	return e.hasConverter
}

// CompressorName reports the selected compressor.
func (e *Engine) CompressorName() string {
	return e.compressor.name
}

// Convert writes bam as gzip FASTQ to dst. dst only appears once complete.
//
// With the converter available the primary path runs and its failures are
// returned as-is. Without it, allowFallback=false returns
// ErrConverterUnavailable and allowFallback=true attempts the fallback,
// whose failures wrap ErrFallbackFailed.
func (e *Engine) Convert(ctx context.Context, bam, dst string, allowFallback bool) (Method, error) {
	if e.hasConverter {
		if err := e.writeAtomically(dst, func(w io.Writer) error {
			return e.primary(ctx, bam, w)
		}); err != nil {
			return "", err
		}
		e.collector.IncUnitsConverted()
		return MethodPrimary, nil
	}

	if !allowFallback {
		return "", fmt.Errorf("%w: %s not found and fallback is not permitted for %s",
			ErrConverterUnavailable, e.tools.Samtools, filepath.Base(bam))
	}

	e.collector.IncFallbackConversion()
	e.logger.Warn("converter unavailable, rebuilding FASTQ from read summary", map[string]any{
		"unit": bam,
	})
	if err := e.fallback(ctx, bam, dst); err != nil {
		e.collector.IncFallbackFailure()
		return "", fmt.Errorf("%w: %s: %w", ErrFallbackFailed, filepath.Base(bam), err)
	}
	e.collector.IncUnitsConverted()
	return MethodFallback, nil
}

// primary pipes "samtools fastq" into the compressor.
func (e *Engine) primary(ctx context.Context, bam string, w io.Writer) error {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := toolchain.RunChecked(gctx, e.runner, toolchain.Invocation{
			Name:   "samtools",
			Path:   e.tools.Samtools,
			Args:   toolchain.SamtoolsFastqArgs(e.threads, bam),
			Stdout: pw,
		})
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := e.compressor.compress(gctx, e.runner, pr, w)
		_ = pr.CloseWithError(err)
		return err
	})
	return g.Wait()
}

// writeAtomically runs write against a temporary sibling of dst and renames
// it into place on success. The temporary name keeps dst's suffix.
func (e *Engine) writeAtomically(dst string, write func(w io.Writer) error) (err error) {
	defer func() {
		if err != nil {
			removeIfEmpty(filepath.Dir(dst))
		}
	}()
	tmp, err := e.createPartial(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (e *Engine) createPartial(dst string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	f, err := os.Create(partialPath(dst))
	if err != nil {
		return nil, fmt.Errorf("create partial output: %w", err)
	}
	return f, nil
}

// removeIfEmpty drops a group directory that a failed unit left empty, so
// the unit yields no group.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

func partialPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), ".partial-"+filepath.Base(dst))
}
