package runtime

import (
	"context"
	"os"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/convert"
	"github.com/pithecene-io/nanoplex/report"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// finish counts every group under groupsRoot and writes the read count
// table, versions.txt and run_report.json.
func (o *Orchestrator) finish(ctx context.Context, groupsRoot string, b bundle.Bundle, p toolchain.Profile) (*Result, error) {
	if err := os.MkdirAll(groupsRoot, 0o755); err != nil {
		return nil, newError(ErrConfiguration, "create groups root", err)
	}
	records, err := report.Aggregate(ctx, groupsRoot, o.cfg.Threads)
	if err != nil {
		return nil, newError(ErrConfiguration, "count groups", err)
	}
	o.collector.AddGroupsCounted(len(records))

	res := &Result{
		Records:       records,
		Summary:       report.Summarize(records),
		TablePath:     o.outPath(DirReports, ReadCountsFile),
		VersionsPath:  o.outPath(DirReports, VersionsFile),
		RunReportPath: o.outPath(DirReports, RunReportFile),
	}
	if err := report.WriteTSV(res.TablePath, records); err != nil {
		return nil, newError(ErrConfiguration, "write read count table", err)
	}

	res.Provenance = o.provenance(ctx, b, p)
	if err := report.WriteVersionsFile(res.VersionsPath, res.Provenance); err != nil {
		return nil, newError(ErrConfiguration, "write versions", err)
	}
	if err := o.advance(types.StageReported); err != nil {
		return nil, err
	}
	if err := o.advance(types.StageComplete); err != nil {
		return nil, err
	}

	res.Stages = o.progress.History()
	res.Duration = o.now().Sub(o.start)
	runReport := &report.RunReport{
		Outcome:    "success",
		Provenance: res.Provenance,
		Records:    records,
		Summary:    res.Summary,
		Stages:     res.Stages,
		Metrics:    o.collector.Snapshot(),
		DurationMS: res.Duration.Milliseconds(),
	}
	if err := report.WriteRunReport(res.RunReportPath, runReport); err != nil {
		o.collector.IncBestEffortFailure()
		o.logger.Warn("failed to write run report (best effort)", map[string]any{
			"error": err.Error(),
		})
	}
	return res, nil
}

// provenance gathers run identity, options and tool versions.
func (o *Orchestrator) provenance(ctx context.Context, b bundle.Bundle, p toolchain.Profile) *report.Provenance {
	host := o.hostname
	if host == "" {
		host, _ = os.Hostname()
	}
	prov := &report.Provenance{
		GeneratedAt:      o.now().UTC(),
		Host:             host,
		RunID:            o.cfg.RunMeta.RunID,
		Nanoplex:         types.Version,
		Model:            o.cfg.Model,
		Mode:             string(o.cfg.Mode),
		Device:           o.cfg.Device(),
		Threads:          o.cfg.Threads,
		Arrangement:      b.Arrangement,
		Sequences:        b.Sequences,
		BundleURL:        o.cfg.BundleSource,
		KeepUnclassified: o.cfg.KeepUnclassified,
		Trim:             o.cfg.Trim,
		SequenceFlag:     p.SequenceFlag,
		Compressor:       o.engine.CompressorName(),
		Tools:            make(map[string]string),
	}
	if o.cfg.RunMeta.JobID != nil {
		prov.JobID = *o.cfg.RunMeta.JobID
	}

	tools := map[string]string{"basecaller": o.cfg.Tools.Basecaller}
	if o.engine.ConverterAvailable() {
		tools["samtools"] = o.cfg.Tools.Samtools
	}
	switch o.engine.CompressorName() {
	case convert.CompressorPigz:
		tools["pigz"] = o.cfg.Tools.Pigz
	case convert.CompressorGzip:
		tools["gzip"] = o.cfg.Tools.Gzip
	}
	if o.cfg.Trim {
		tools["cutadapt"] = o.cfg.Tools.Cutadapt
	}
	for name, path := range tools {
		prov.Tools[name] = toolchain.ToolVersion(ctx, o.runner, name, path)
	}
	return prov
}
