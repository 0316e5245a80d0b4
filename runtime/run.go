// Package runtime drives a sequencing run end to end: validation, barcode
// bundle and capability resolution, one of two basecall/demux topologies,
// conversion, optional trimming, and reporting.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/convert"
	"github.com/pithecene-io/nanoplex/log"
	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/report"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// BundleProvider provisions the barcode bundle into a resources directory.
type BundleProvider interface {
	Provision(ctx context.Context, source, resourcesDir string) (bundle.Bundle, bool, error)
}

// CapabilityProber resolves the demultiplexer's flag surface.
type CapabilityProber interface {
	Profile(ctx context.Context) (toolchain.Profile, error)
}

// Config wires an Orchestrator.
type Config struct {
	// Run is the validated-on-start run configuration.
	Run types.RunConfig
	// Runner executes external tools.
	Runner toolchain.Runner
	// Locator resolves tool availability. If nil, PATH is used.
	Locator toolchain.Locator
	// Bundles provisions the barcode bundle.
	Bundles BundleProvider
	// Prober overrides capability probing. If nil, the basecaller is probed.
	Prober CapabilityProber
	// Logger receives structured run logs. If nil, logs are discarded.
	Logger *log.Logger
	// Collector records run metrics. May be nil.
	Collector *metrics.Collector
	// Now is the clock for provenance. If nil, time.Now is used.
	Now func() time.Time
	// Hostname overrides os.Hostname in provenance.
	Hostname string
}

// Result is the outcome of a completed run.
type Result struct {
	Records    []report.Record
	Summary    report.Summary
	Stages     []types.Stage
	Provenance *report.Provenance
	// Paths of the written reports.
	TablePath     string
	VersionsPath  string
	RunReportPath string
	Duration      time.Duration
}

// Orchestrator runs one pipeline invocation. Not reusable.
type Orchestrator struct {
	cfg       types.RunConfig
	runner    toolchain.Runner
	locator   toolchain.Locator
	bundles   BundleProvider
	prober    CapabilityProber
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time
	hostname  string

	progress *types.Progress
	engine   *convert.Engine
	start    time.Time
}

// NewOrchestrator creates an orchestrator. Tool invocations are counted
// in the collector.
func NewOrchestrator(c Config) *Orchestrator {
	o := &Orchestrator{
		cfg:       c.Run,
		runner:    toolchain.NewInstrumentedRunner(c.Runner, c.Collector),
		locator:   c.Locator,
		bundles:   c.Bundles,
		prober:    c.Prober,
		logger:    c.Logger,
		collector: c.Collector,
		now:       c.Now,
		hostname:  c.Hostname,
		progress:  types.NewProgress(),
	}
	if o.locator == nil {
		o.locator = toolchain.PathLocator{}
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.prober == nil {
		o.prober = toolchain.NewProber(o.runner, c.Run.Tools.Basecaller)
	}
	return o
}

// Stages returns the stages reached so far.
func (o *Orchestrator) Stages() []types.Stage {
	return o.progress.History()
}

// Run executes the pipeline.
//
// Execution flow:
//  1. Validate configuration, tools and the output root
//  2. Provision the barcode bundle
//  3. Resolve the demultiplexer capability profile
//  4. Basecall and demultiplex (topology per mode) into scratch
//  5. Filter and convert units into demux/<label>/
//  6. Optionally trim primers into demux_trimmed/<label>/
//  7. Count groups and write reports
//
// Scratch is removed on every return path. Fatal errors are
// *PipelineError values.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.start = o.now()
	o.logger.Info("starting run", map[string]any{
		"input":  o.cfg.InputDir,
		"output": o.cfg.OutputRoot,
		"model":  o.cfg.Model,
		"mode":   string(o.cfg.Mode),
		"device": o.cfg.Device(),
	})

	if err := o.validate(); err != nil {
		return nil, o.fail(err)
	}

	b, err := o.resolveBundle(ctx)
	if err != nil {
		return nil, o.fail(err)
	}

	profile, err := o.prober.Profile(ctx)
	if err != nil {
		return nil, o.fail(classify("probe demultiplexer", err))
	}
	o.logger.Info("capability profile resolved", map[string]any{
		"sequence_flag": profile.SequenceFlag,
	})
	if err := o.advance(types.StageCapabilityResolved); err != nil {
		return nil, o.fail(err)
	}

	scratch, err := NewScratch(o.cfg.ScratchBase(), o.cfg.RunMeta.RunID)
	if err != nil {
		return nil, o.fail(newError(ErrConfiguration, "create scratch", err))
	}
	defer func() {
		if rmErr := scratch.Remove(); rmErr != nil {
			o.logger.Warn("failed to remove scratch", map[string]any{
				"path":  scratch.Dir,
				"error": rmErr.Error(),
			})
		}
	}()

	o.engine = convert.NewEngine(convert.Config{
		Runner:    o.runner,
		Locator:   o.locator,
		Tools:     o.cfg.Tools,
		Threads:   o.cfg.Threads,
		Columns:   o.cfg.Fallback,
		Logger:    o.logger,
		Collector: o.collector,
	})

	var units []types.Unit
	var allowFallback bool
	switch o.cfg.Mode {
	case types.ModeDemuxDuring:
		units, err = o.demuxDuring(ctx, scratch, b, profile)
		allowFallback = true
	default:
		units, err = o.demuxAfter(ctx, scratch, b, profile)
	}
	if err != nil {
		return nil, o.fail(err)
	}

	if err := o.convertUnits(ctx, units, allowFallback); err != nil {
		return nil, o.fail(err)
	}
	if err := o.advance(types.StageConverted); err != nil {
		return nil, o.fail(err)
	}

	groupsRoot := o.outPath(DirDemux)
	if o.cfg.Trim {
		if err := o.trim(ctx); err != nil {
			return nil, o.fail(err)
		}
		if err := o.advance(types.StageTrimmed); err != nil {
			return nil, o.fail(err)
		}
		groupsRoot = o.outPath(DirDemuxTrimmed)
	}

	result, err := o.finish(ctx, groupsRoot, b, profile)
	if err != nil {
		return nil, o.fail(err)
	}

	o.logger.Info("run completed", map[string]any{
		"groups":      len(result.Records),
		"total_reads": result.Summary.TotalReads,
		"duration":    result.Duration.String(),
	})
	return result, nil
}

// validate checks configuration, inputs and tools, then guards the
// output root. Nothing on disk changes unless every check passes.
func (o *Orchestrator) validate() error {
	if err := o.cfg.Validate(); err != nil {
		return newError(ErrConfiguration, "validate configuration", err)
	}
	info, err := os.Stat(o.cfg.InputDir)
	if err != nil {
		return newError(ErrConfiguration, "validate input", err)
	}
	if !info.IsDir() {
		return newError(ErrConfiguration, "validate input", fmt.Errorf("%s is not a directory", o.cfg.InputDir))
	}

	// Per-barcode conversion after a separate demux pass has no fallback.
	required := []string{o.cfg.Tools.Basecaller}
	if o.cfg.Mode == types.ModeDemuxAfter {
		required = append(required, o.cfg.Tools.Samtools)
	}
	if o.cfg.Trim {
		required = append(required, o.cfg.Tools.Cutadapt)
	}
	for _, tool := range required {
		if !toolchain.Available(o.locator, tool) {
			return newError(ErrConfiguration, "validate tools", fmt.Errorf("required tool %q not found", tool))
		}
	}
	if !toolchain.Available(o.locator, o.cfg.Tools.Samtools) {
		o.logger.Warn("converter not found; using read summary fallback", map[string]any{
			"tool": o.cfg.Tools.Samtools,
			"mode": string(o.cfg.Mode),
		})
	}

	if err := CheckOutputRoot(o.cfg.OutputRoot, o.cfg.Force); err != nil {
		return err
	}
	return o.advance(types.StageValidated)
}

func (o *Orchestrator) resolveBundle(ctx context.Context) (bundle.Bundle, error) {
	if o.bundles == nil {
		return bundle.Bundle{}, newError(ErrConfiguration, "resolve barcode bundle", errors.New("no bundle provider configured"))
	}
	b, cached, err := o.bundles.Provision(ctx, o.cfg.BundleSource, o.outPath(DirResources))
	if err != nil {
		if ctx.Err() != nil {
			return bundle.Bundle{}, classify("resolve barcode bundle", ctx.Err())
		}
		return bundle.Bundle{}, newError(ErrConfiguration, "resolve barcode bundle", err)
	}
	o.logger.Info("barcode bundle resolved", map[string]any{
		"arrangement": b.Arrangement,
		"sequences":   b.Sequences,
		"cached":      cached,
	})
	return b, o.advance(types.StageBundleResolved)
}

// advance moves the stage descriptor, logging each transition.
func (o *Orchestrator) advance(next types.Stage) error {
	if err := o.progress.Advance(next); err != nil {
		return fmt.Errorf("internal: %w", err)
	}
	o.logger.Debug("stage reached", map[string]any{"stage": string(next)})
	return nil
}

// fail logs a fatal error with its kind and returns it unchanged.
func (o *Orchestrator) fail(err error) error {
	o.logger.Error("run failed", map[string]any{
		"kind":  KindName(err),
		"stage": string(o.progress.Current()),
		"error": err.Error(),
	})
	return err
}

func (o *Orchestrator) outPath(elem ...string) string {
	return filepath.Join(append([]string{o.cfg.OutputRoot}, elem...)...)
}
