package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/convert"
	"github.com/pithecene-io/nanoplex/iox"
	"github.com/pithecene-io/nanoplex/report"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// Merged-run artifact names under basecalled/.
const (
	mergedBAM     = "basecalled.bam"
	mergedFASTQ   = "basecalled.fastq.gz"
	mergedSummary = "summary.tsv"
)

// demuxAfter basecalls into one merged BAM, keeps a durable copy with a
// best-effort summary and FASTQ, then demultiplexes it in scratch.
func (o *Orchestrator) demuxAfter(ctx context.Context, scratch *Scratch, b bundle.Bundle, p toolchain.Profile) ([]types.Unit, error) {
	merged := scratch.Path(mergedBAM)
	if err := o.captureTo(ctx, merged, toolchain.Invocation{
		Name: "basecaller",
		Path: o.cfg.Tools.Basecaller,
		Args: toolchain.BasecallArgs(o.cfg.Model, o.cfg.InputDir, o.cfg.Device()),
	}); err != nil {
		return nil, classify("basecall", err)
	}

	durable := o.outPath(DirBasecalled, mergedBAM)
	if err := iox.CopyFile(merged, durable); err != nil {
		return nil, newError(ErrConfiguration, "copy merged alignment", err)
	}
	if err := o.advance(types.StageBasecallDone); err != nil {
		return nil, err
	}

	o.bestEffortSummary(ctx, durable, o.outPath(DirBasecalled, mergedSummary))
	o.bestEffortMergedFASTQ(ctx, durable, o.outPath(DirBasecalled, mergedFASTQ))

	demuxDir := scratch.Path(DirDemux)
	if _, err := toolchain.RunChecked(ctx, o.runner, toolchain.Invocation{
		Name: "demux",
		Path: o.cfg.Tools.Basecaller,
		Args: toolchain.DemuxArgs(p, b.Arrangement, b.Sequences, demuxDir, merged),
	}); err != nil {
		return nil, classify("demultiplex", err)
	}

	units, err := ListUnits(demuxDir)
	if err != nil {
		return nil, newError(ErrSubprocess, "list demultiplexed units", err)
	}
	return units, nil
}

// demuxDuring basecalls with inline demultiplexing into scratch.
func (o *Orchestrator) demuxDuring(ctx context.Context, scratch *Scratch, b bundle.Bundle, p toolchain.Profile) ([]types.Unit, error) {
	demuxDir := scratch.Path(DirDemux)
	if _, err := toolchain.RunChecked(ctx, o.runner, toolchain.Invocation{
		Name: "basecaller",
		Path: o.cfg.Tools.Basecaller,
		Args: toolchain.FusedBasecallArgs(o.cfg.Model, o.cfg.InputDir, o.cfg.Device(), p, b.Arrangement, b.Sequences, demuxDir),
	}); err != nil {
		return nil, classify("basecall with demultiplexing", err)
	}
	if err := o.advance(types.StageBasecallDemuxFused); err != nil {
		return nil, err
	}

	units, err := ListUnits(demuxDir)
	if err != nil {
		return nil, newError(ErrSubprocess, "list demultiplexed units", err)
	}
	return units, nil
}

// captureTo runs inv with stdout written to dst. dst is removed on failure.
func (o *Orchestrator) captureTo(ctx context.Context, dst string, inv toolchain.Invocation) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	inv.Stdout = f
	_, err = toolchain.RunChecked(ctx, o.runner, inv)
	return err
}

func (o *Orchestrator) bestEffortSummary(ctx context.Context, bam, dst string) {
	err := o.captureTo(ctx, dst, toolchain.Invocation{
		Name: "basecaller-summary",
		Path: o.cfg.Tools.Basecaller,
		Args: toolchain.SummaryArgs(bam),
	})
	if err != nil {
		o.collector.IncBestEffortFailure()
		o.logger.Warn("read summary failed (best effort)", map[string]any{
			"unit":  bam,
			"error": err.Error(),
		})
	}
}

func (o *Orchestrator) bestEffortMergedFASTQ(ctx context.Context, bam, dst string) {
	method, err := o.engine.Convert(ctx, bam, dst, true)
	if err != nil {
		o.collector.IncBestEffortFailure()
		o.logger.Warn("merged FASTQ conversion failed (best effort)", map[string]any{
			"unit":  bam,
			"error": err.Error(),
		})
		return
	}
	o.logger.Info("merged FASTQ written", map[string]any{
		"path":   dst,
		"method": string(method),
	})
}

// convertUnits filters units and converts the survivors into
// demux/<label>/. With allowFallback, a failed fallback skips the unit;
// every other conversion failure is fatal.
func (o *Orchestrator) convertUnits(ctx context.Context, units []types.Unit, allowFallback bool) error {
	kept, dropped := FilterUnits(units, o.cfg.KeepUnclassified)
	o.collector.AddUnitsProduced(len(units))
	o.collector.AddUnitsDropped(len(dropped))
	for _, u := range dropped {
		o.logger.Info("dropping unclassified unit", map[string]any{"label": u.Label})
	}

	root := o.outPath(DirDemux)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return newError(ErrConfiguration, "create output groups", err)
	}

	jobs := planConversions(kept, root)
	o.logger.Info("converting units", map[string]any{
		"units":               len(jobs),
		"dropped":             len(dropped),
		"compressor":          o.engine.CompressorName(),
		"fallback_allowed":    allowFallback,
		"converter_available": o.engine.ConverterAvailable(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Threads, 1))
	for _, job := range jobs {
		g.Go(func() error {
			method, err := o.engine.Convert(gctx, job.unit.Path, job.dst, allowFallback)
			if err != nil {
				if allowFallback && errors.Is(err, convert.ErrFallbackFailed) {
					o.logger.Warn("unit skipped, fallback conversion failed", map[string]any{
						"label": job.unit.Label,
						"error": err.Error(),
					})
					return nil
				}
				return classify(fmt.Sprintf("convert %s", job.unit.Label), err)
			}
			o.logger.Debug("unit converted", map[string]any{
				"label":  job.unit.Label,
				"method": string(method),
			})
			return nil
		})
	}
	return g.Wait()
}

// trim runs the primer trimmer over every group file, mirroring the
// demux/ layout under demux_trimmed/.
func (o *Orchestrator) trim(ctx context.Context) error {
	src := o.outPath(DirDemux)
	dst := o.outPath(DirDemuxTrimmed)
	labels, err := report.ListGroups(src)
	if err != nil {
		return newError(ErrConfiguration, "list groups for trimming", err)
	}
	primers := o.cfg.Primers
	for _, label := range labels {
		files, err := report.SequenceFiles(filepath.Join(src, label))
		if err != nil {
			return newError(ErrConfiguration, "list group files", err)
		}
		if err := os.MkdirAll(filepath.Join(dst, label), 0o755); err != nil {
			return newError(ErrConfiguration, "create trimmed group", err)
		}
		for _, in := range files {
			out := filepath.Join(dst, label, filepath.Base(in))
			if _, err := toolchain.RunChecked(ctx, o.runner, toolchain.Invocation{
				Name: "cutadapt",
				Path: o.cfg.Tools.Cutadapt,
				Args: toolchain.CutadaptArgs(primers.Forward, primers.Reverse, primers.MinLength, o.cfg.Threads, out, in),
			}); err != nil {
				return classify(fmt.Sprintf("trim %s", label), err)
			}
		}
		o.logger.Debug("group trimmed", map[string]any{"label": label, "files": len(files)})
	}
	return nil
}
