package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

const helpWithSequences = "--output-dir --barcode-arrangement --barcode-sequences --no-trim"

// groupShape is the simulated content of one demultiplexed unit.
type groupShape struct {
	reads  int
	seqLen int
}

var scenarioGroups = map[string]groupShape{
	"barcodeA":     {10, 100},
	"barcodeB":     {5, 100},
	"barcodeC":     {0, 0},
	"unclassified": {2, 75},
}

type fakeBundles struct {
	b     bundle.Bundle
	err   error
	calls int
}

func (f *fakeBundles) Provision(_ context.Context, _, _ string) (bundle.Bundle, bool, error) {
	f.calls++
	return f.b, false, f.err
}

// fakeDorado simulates the external toolchain.
type fakeDorado struct {
	help          string
	basecallExit  int
	summaryExit   int
	unitFileNames map[string]string // label -> file name relative to the demux dir
}

func newFakeDorado() *fakeDorado {
	return &fakeDorado{
		help: helpWithSequences,
		unitFileNames: map[string]string{
			"barcodeA":     "barcodeA.bam",
			"barcodeB":     "barcodeB.bam",
			"unclassified": "unclassified.bam",
		},
	}
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func (f *fakeDorado) writeUnits(dir string) error {
	for label, name := range f.unitFileNames {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(label), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func fastqFor(label string) string {
	shape, ok := scenarioGroups[label]
	if !ok {
		shape = groupShape{1, 4}
	}
	var b strings.Builder
	for i := range shape.reads {
		fmt.Fprintf(&b, "@%s-%d\n%s\n+\n%s\n", label, i, strings.Repeat("C", shape.seqLen), strings.Repeat("#", shape.seqLen))
	}
	return b.String()
}

func (f *fakeDorado) handle(_ context.Context, inv toolchain.Invocation) (*toolchain.Result, error) {
	switch {
	case inv.Name == "demux-probe":
		_, _ = io.WriteString(inv.Stdout, f.help)
	case strings.HasSuffix(inv.Name, "-version"):
		_, _ = io.WriteString(inv.Stdout, inv.Name+" 1.0\n")
	case inv.Name == "basecaller":
		if f.basecallExit != 0 {
			return &toolchain.Result{ExitCode: f.basecallExit, Stderr: []byte("CUDA error")}, nil
		}
		if out := argAfter(inv.Args, toolchain.FlagOutputDir); out != "" {
			return &toolchain.Result{}, f.writeUnits(out)
		}
		_, _ = io.WriteString(inv.Stdout, "merged")
	case inv.Name == "demux":
		return &toolchain.Result{}, f.writeUnits(argAfter(inv.Args, toolchain.FlagOutputDir))
	case inv.Name == "samtools":
		data, err := os.ReadFile(inv.Args[len(inv.Args)-1])
		if err != nil {
			return nil, err
		}
		_, _ = io.WriteString(inv.Stdout, fastqFor(string(data)))
	case inv.Name == "basecaller-summary":
		if f.summaryExit != 0 {
			return &toolchain.Result{ExitCode: f.summaryExit}, nil
		}
		data, err := os.ReadFile(inv.Args[len(inv.Args)-1])
		if err != nil {
			return nil, err
		}
		label := string(data)
		shape := scenarioGroups[label]
		_, _ = io.WriteString(inv.Stdout, "filename\tread_id\tsequence\tquality\n")
		for i := range shape.reads {
			fmt.Fprintf(inv.Stdout, "x.pod5\t%s-%d\t%s\t%s\n", label, i, strings.Repeat("G", shape.seqLen), strings.Repeat("I", shape.seqLen))
		}
	case inv.Name == "cutadapt":
		in := inv.Args[len(inv.Args)-1]
		out := argAfter(inv.Args, "-o")
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		return &toolchain.Result{}, os.WriteFile(out, data, 0o644)
	}
	return &toolchain.Result{}, nil
}

type harness struct {
	cfg       types.RunConfig
	dorado    *fakeDorado
	stub      *toolchain.StubRunner
	bundles   *fakeBundles
	locator   toolchain.StaticLocator
	collector *metrics.Collector
}

func newHarness(t *testing.T, mode types.Mode) *harness {
	t.Helper()
	root := t.TempDir()
	input := filepath.Join(root, "pod5")
	if err := os.MkdirAll(input, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := types.RunConfig{
		RunMeta:      types.RunMeta{RunID: "run-test"},
		InputDir:     input,
		OutputRoot:   filepath.Join(root, "out"),
		Model:        "sup",
		Threads:      2,
		Mode:         mode,
		BundleSource: "https://example.invalid/bundle.zip",
		Tools:        types.DefaultToolPaths(),
		Primers:      types.DefaultPrimerSet(),
		Fallback:     types.DefaultFallbackColumns(),
	}
	dorado := newFakeDorado()
	return &harness{
		cfg:     cfg,
		dorado:  dorado,
		stub:    &toolchain.StubRunner{Handler: dorado.handle},
		bundles: &fakeBundles{b: bundle.Bundle{Arrangement: "/res/arr.toml", Sequences: "/res/seqs.fasta"}},
		locator: toolchain.StaticLocator{
			"dorado":   "/usr/bin/dorado",
			"samtools": "/usr/bin/samtools",
			"cutadapt": "/usr/bin/cutadapt",
		},
		collector: metrics.NewCollector(string(mode), "sup", "run-test", ""),
	}
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	o := NewOrchestrator(Config{
		Run:       h.cfg,
		Runner:    h.stub,
		Locator:   h.locator,
		Bundles:   h.bundles,
		Collector: h.collector,
		Hostname:  "testhost",
	})
	return o.Run(context.Background())
}

func labels(res *Result) []string {
	var out []string
	for _, r := range res.Records {
		out = append(out, r.Label)
	}
	return out
}

func assertScratchRemoved(t *testing.T, h *harness) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(h.cfg.ScratchBase(), ".nanoplex-scratch-run-test")); !os.IsNotExist(err) {
		t.Errorf("scratch directory still present (stat err = %v)", err)
	}
}

func TestRun_DemuxDuringDropsUnclassified(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := labels(res); !slices.Equal(got, []string{"barcodeA", "barcodeB"}) {
		t.Errorf("labels = %v, want [barcodeA barcodeB]", got)
	}
	if res.Summary.TotalReads != 15 {
		t.Errorf("TotalReads = %d, want 15", res.Summary.TotalReads)
	}
	if res.Summary.HasUnclassified {
		t.Error("HasUnclassified = true, want false")
	}
	if res.Records[0].Bases != 1000 || res.Records[1].Bases != 500 {
		t.Errorf("bases = %d/%d, want 1000/500", res.Records[0].Bases, res.Records[1].Bases)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.OutputRoot, DirDemux, "unclassified")); !os.IsNotExist(err) {
		t.Error("unclassified group exists, want dropped")
	}
	if n := len(h.stub.CallsNamed("samtools")); n != 2 {
		t.Errorf("samtools calls = %d, want 2 (unclassified dropped before conversion)", n)
	}
	assertScratchRemoved(t, h)

	table, err := os.ReadFile(res.TablePath)
	if err != nil {
		t.Fatal(err)
	}
	want := "barcode\treads\tbases\nbarcodeA\t10\t1000\nbarcodeB\t5\t500\n"
	if string(table) != want {
		t.Errorf("table = %q, want %q", table, want)
	}
	for _, p := range []string{res.VersionsPath, res.RunReportPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing report %s: %v", p, err)
		}
	}

	wantStages := []types.Stage{
		types.StagePending, types.StageValidated, types.StageBundleResolved,
		types.StageCapabilityResolved, types.StageBasecallDemuxFused,
		types.StageConverted, types.StageReported, types.StageComplete,
	}
	if !slices.Equal(res.Stages, wantStages) {
		t.Errorf("stages = %v, want %v", res.Stages, wantStages)
	}

	basecalls := h.stub.CallsNamed("basecaller")
	if len(basecalls) != 1 {
		t.Fatalf("basecaller calls = %d, want 1", len(basecalls))
	}
	if got := argAfter(basecalls[0].Args, "--barcode-sequences"); got != "/res/seqs.fasta" {
		t.Errorf("sequence flag value = %q, want /res/seqs.fasta", got)
	}
	if got := argAfter(basecalls[0].Args, "--device"); got != "cpu" {
		t.Errorf("device = %q, want cpu", got)
	}

	snap := h.collector.Snapshot()
	if snap.UnitsProduced != 3 || snap.UnitsDropped != 1 || snap.UnitsConverted != 2 {
		t.Errorf("units produced/dropped/converted = %d/%d/%d, want 3/1/2",
			snap.UnitsProduced, snap.UnitsDropped, snap.UnitsConverted)
	}
}

func TestRun_KeepUnclassified(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.cfg.KeepUnclassified = true
	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := labels(res); !slices.Equal(got, []string{"barcodeA", "barcodeB", "unclassified"}) {
		t.Errorf("labels = %v", got)
	}
	if res.Summary.TotalReads != 17 {
		t.Errorf("TotalReads = %d, want 17", res.Summary.TotalReads)
	}
	if res.Summary.UnclassifiedPct != 11.8 {
		t.Errorf("UnclassifiedPct = %v, want 11.8", res.Summary.UnclassifiedPct)
	}
}

func TestRun_DemuxAfter(t *testing.T) {
	h := newHarness(t, types.ModeDemuxAfter)
	h.cfg.GPUs = 2
	h.dorado.help = "--output-dir --barcode-arrangement --barcode-seqs"
	h.dorado.unitFileNames = map[string]string{
		"barcodeA":     "kit/SQK-16S024_barcodeA.bam",
		"barcodeB":     "kit/SQK-16S024_barcodeB.bam",
		"unclassified": "kit/unclassified.bam",
	}

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := labels(res); !slices.Equal(got, []string{"barcodeA", "barcodeB"}) {
		t.Errorf("labels = %v, want [barcodeA barcodeB]", got)
	}

	for _, name := range []string{"basecalled.bam", "summary.tsv", "basecalled.fastq.gz"} {
		if _, err := os.Stat(filepath.Join(h.cfg.OutputRoot, DirBasecalled, name)); err != nil {
			t.Errorf("missing basecalled/%s: %v", name, err)
		}
	}

	demux := h.stub.CallsNamed("demux")
	if len(demux) != 1 {
		t.Fatalf("demux calls = %d, want 1", len(demux))
	}
	if got := argAfter(demux[0].Args, "--barcode-seqs"); got != "/res/seqs.fasta" {
		t.Errorf("--barcode-seqs value = %q", got)
	}
	if got := argAfter(h.stub.CallsNamed("basecaller")[0].Args, "--device"); got != "cuda:0,1" {
		t.Errorf("device = %q, want cuda:0,1", got)
	}
	if !slices.Contains(res.Stages, types.StageBasecallDone) {
		t.Errorf("stages = %v, want basecall_done", res.Stages)
	}
	assertScratchRemoved(t, h)
}

func TestRun_DemuxAfterRequiresConverter(t *testing.T) {
	h := newHarness(t, types.ModeDemuxAfter)
	delete(h.locator, "samtools")

	_, err := h.run(t)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run() error = %v, want ErrConfiguration", err)
	}
	if n := len(h.stub.Calls()); n != 0 {
		t.Errorf("tool calls = %d, want 0", n)
	}
	if h.bundles.calls != 0 {
		t.Errorf("bundle provisioning calls = %d, want 0", h.bundles.calls)
	}
	if _, statErr := os.Stat(filepath.Join(h.cfg.OutputRoot, DirBasecalled)); !os.IsNotExist(statErr) {
		t.Errorf("basecalled output exists after validation failure")
	}
}

func TestRun_DemuxDuringFallsBack(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	delete(h.locator, "samtools")

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Summary.TotalReads != 15 {
		t.Errorf("TotalReads = %d, want 15", res.Summary.TotalReads)
	}
	if n := len(h.stub.CallsNamed("samtools")); n != 0 {
		t.Errorf("samtools calls = %d, want 0", n)
	}
	if got := h.collector.Snapshot().FallbackConversions; got != 2 {
		t.Errorf("FallbackConversions = %d, want 2", got)
	}
}

func TestRun_DemuxDuringFallbackFailureIsWarning(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	delete(h.locator, "samtools")
	h.dorado.summaryExit = 1

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %v, want none", res.Records)
	}
	if res.Summary.TotalReads != 0 || res.Summary.UnclassifiedPct != 0 {
		t.Errorf("summary = %+v, want zero", res.Summary)
	}
	for _, label := range []string{"barcodeA", "barcodeB"} {
		if _, statErr := os.Stat(filepath.Join(h.cfg.OutputRoot, DirDemux, label)); !os.IsNotExist(statErr) {
			t.Errorf("group directory %s exists for a unit that produced nothing", label)
		}
	}
	if got := h.collector.Snapshot().FallbackFailures; got != 2 {
		t.Errorf("FallbackFailures = %d, want 2", got)
	}
}

func TestRun_ZeroReadGroupCountsAsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		mode     types.Mode
		samtools bool
	}{
		{"primary conversion", types.ModeDemuxDuring, true},
		{"summary fallback", types.ModeDemuxDuring, false},
		{"demux after", types.ModeDemuxAfter, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mode)
			h.dorado.unitFileNames["barcodeC"] = "barcodeC.bam"
			if !tt.samtools {
				delete(h.locator, "samtools")
			}

			res, err := h.run(t)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := labels(res); !slices.Equal(got, []string{"barcodeA", "barcodeB", "barcodeC"}) {
				t.Fatalf("labels = %v, want [barcodeA barcodeB barcodeC]", got)
			}
			if rec := res.Records[2]; rec.Reads != 0 || rec.Bases != 0 {
				t.Errorf("barcodeC = %+v, want zero reads and bases", rec)
			}
			if res.Summary.TotalReads != 15 {
				t.Errorf("TotalReads = %d, want 15", res.Summary.TotalReads)
			}
		})
	}
}

func TestFinish_UnreadableGroupIsConfigurationError(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	groups := filepath.Join(h.cfg.OutputRoot, DirDemux)
	bad := filepath.Join(groups, "barcodeA", "barcodeA.fastq.gz")
	if err := os.MkdirAll(filepath.Dir(bad), 0o755); err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte{0x1f, 0x8b, 0x08, 0, 0, 0, 0, 0, 0, 0xff}, "not deflate data"...)
	if err := os.WriteFile(bad, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(Config{Run: h.cfg, Runner: h.stub, Locator: h.locator, Collector: h.collector})
	_, err := o.finish(context.Background(), groups, bundle.Bundle{}, toolchain.Profile{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("finish() error = %v, want ErrConfiguration", err)
	}
	if errors.Is(err, ErrSubprocess) {
		t.Errorf("finish() error = %v, classified as a subprocess failure", err)
	}
}

func TestRun_OutputCollisionChangesNothing(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	previous := filepath.Join(h.cfg.OutputRoot, DirDemux, "barcodeA", "barcodeA.fastq.gz")
	if err := os.MkdirAll(filepath.Dir(previous), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(previous, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	before := snapshotTree(t, h.cfg.OutputRoot)

	_, err := h.run(t)
	if !errors.Is(err, ErrOutputCollision) {
		t.Fatalf("Run() error = %v, want ErrOutputCollision", err)
	}
	if n := len(h.stub.Calls()); n != 0 {
		t.Errorf("tool calls = %d, want 0", n)
	}
	if h.bundles.calls != 0 {
		t.Errorf("bundle provisioning calls = %d, want 0", h.bundles.calls)
	}
	if after := snapshotTree(t, h.cfg.OutputRoot); !slices.Equal(before, after) {
		t.Errorf("output tree changed:\nbefore %v\nafter  %v", before, after)
	}
}

func TestRun_ForceReplacesResults(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.cfg.Force = true
	stale := filepath.Join(h.cfg.OutputRoot, DirDemux, "barcodeZ", "barcodeZ.fastq.gz")
	cache := filepath.Join(h.cfg.OutputRoot, DirResources, "barcodes.zip")
	for _, p := range []string{stale, cache} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := labels(res); !slices.Equal(got, []string{"barcodeA", "barcodeB"}) {
		t.Errorf("labels = %v, want stale group removed", got)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Errorf("resources cache removed: %v", err)
	}
}

func TestRun_IncompatibleDemuxerStopsBeforeTools(t *testing.T) {
	h := newHarness(t, types.ModeDemuxAfter)
	h.dorado.help = "--output-dir --barcode-arrangement --kit-name"

	_, err := h.run(t)
	if !errors.Is(err, ErrCompatibility) {
		t.Fatalf("Run() error = %v, want ErrCompatibility", err)
	}
	for _, c := range h.stub.Calls() {
		if c.Name != "demux-probe" {
			t.Errorf("unexpected tool invocation %q after failed probe", c.Name)
		}
	}
	if _, err := os.Stat(filepath.Join(h.cfg.OutputRoot, DirBasecalled)); !os.IsNotExist(err) {
		t.Error("basecalled/ created despite compatibility failure")
	}
}

func TestRun_BasecallerFailure(t *testing.T) {
	h := newHarness(t, types.ModeDemuxAfter)
	h.dorado.basecallExit = 137

	_, err := h.run(t)
	if !errors.Is(err, ErrSubprocess) {
		t.Fatalf("Run() error = %v, want ErrSubprocess", err)
	}
	var exitErr *toolchain.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != 137 {
		t.Errorf("error = %v, want wrapped exit code 137", err)
	}
	if !strings.Contains(err.Error(), "CUDA error") {
		t.Errorf("error %q does not carry stderr", err)
	}
	assertScratchRemoved(t, h)
}

func TestRun_Trim(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.cfg.Trim = true

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	trimmed := filepath.Join(h.cfg.OutputRoot, DirDemuxTrimmed, "barcodeA", "barcodeA.fastq.gz")
	if _, err := os.Stat(trimmed); err != nil {
		t.Errorf("missing trimmed output: %v", err)
	}
	calls := h.stub.CallsNamed("cutadapt")
	if len(calls) != 2 {
		t.Fatalf("cutadapt calls = %d, want 2", len(calls))
	}
	if got := argAfter(calls[0].Args, "-g"); got != types.DefaultPrimerSet().Forward {
		t.Errorf("forward primer = %q", got)
	}
	if !slices.Contains(res.Stages, types.StageTrimmed) {
		t.Errorf("stages = %v, want trimmed", res.Stages)
	}
	if res.Summary.TotalReads != 15 {
		t.Errorf("TotalReads = %d, want 15", res.Summary.TotalReads)
	}
}

func TestRun_TrimRequiresCutadapt(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.cfg.Trim = true
	delete(h.locator, "cutadapt")

	_, err := h.run(t)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run() error = %v, want ErrConfiguration", err)
	}
	if n := len(h.stub.Calls()); n != 0 {
		t.Errorf("tool calls = %d, want 0", n)
	}
}

func TestRun_BundleFailure(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.bundles.err = fmt.Errorf("wrap: %w", bundle.ErrNotFound)

	_, err := h.run(t)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run() error = %v, want ErrConfiguration", err)
	}
	if !errors.Is(err, bundle.ErrNotFound) {
		t.Errorf("error = %v, want wrapped bundle.ErrNotFound", err)
	}
}

func TestRun_MissingInput(t *testing.T) {
	h := newHarness(t, types.ModeDemuxDuring)
	h.cfg.InputDir = filepath.Join(t.TempDir(), "absent")

	_, err := h.run(t)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run() error = %v, want ErrConfiguration", err)
	}
}

// snapshotTree lists every path under root, or nil if root is absent.
func snapshotTree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return paths
}
