package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/bundle"
	"github.com/pithecene-io/nanoplex/cli/config"
	"github.com/pithecene-io/nanoplex/cli/tui"
	"github.com/pithecene-io/nanoplex/log"
	"github.com/pithecene-io/nanoplex/metrics"
	"github.com/pithecene-io/nanoplex/runtime"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// exitFailure is the exit code for every fatal condition.
const exitFailure = 1

// bundleURLEnv supplies the bundle source when neither flag nor config does.
const bundleURLEnv = "NANOPLEX_BUNDLE_URL"

// runEnv holds the process-level collaborators of the run command.
type runEnv struct {
	runner  toolchain.Runner
	locator toolchain.Locator
	// bundles overrides the scheme-dispatching provisioner.
	bundles  runtime.BundleProvider
	newRunID func() string
	now      func() time.Time
	// logOut receives the console copy of the run log.
	logOut io.Writer
}

func defaultRunEnv() runEnv {
	return runEnv{
		runner:   toolchain.NewExecRunner(),
		locator:  toolchain.PathLocator{},
		newRunID: uuid.NewString,
		now:      time.Now,
		logOut:   os.Stderr,
	}
}

// RunCommand returns the run command, the only command that executes work.
func RunCommand() *cli.Command {
	return newRunCommand(defaultRunEnv())
}

func newRunCommand(env runEnv) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "Directory of raw signal (POD5) files",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    "Output root",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "model",
			Aliases:  []string{"m"},
			Usage:    "Basecalling model",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "threads",
			Usage: "Worker threads",
			Value: goruntime.NumCPU(),
		},
		&cli.IntFlag{
			Name:  "gpus",
			Usage: "GPUs for basecalling (0 uses the CPU)",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "keep-unclassified",
			Usage: "Keep the unclassified group",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Topology: demux-after or demux-during",
			Value: string(types.ModeDemuxAfter),
		},
		&cli.BoolFlag{
			Name:  "trim",
			Usage: "Trim primers from each group",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite results of a previous run",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to nanoplex.yaml",
		},
		&cli.StringFlag{
			Name:    "job-id",
			Usage:   "Scheduler job ID recorded in logs and provenance",
			EnvVars: []string{"SLURM_JOB_ID"},
		},
		&cli.StringFlag{
			Name:    "bundle-url",
			Usage:   "Barcode bundle archive (https://, s3://, file:// or path)",
			EnvVars: []string{bundleURLEnv},
		},
		&cli.StringFlag{
			Name:  "scratch",
			Usage: "Fast local storage for intermediates (default: output root)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the end-of-run summary",
		},
		NoColorFlag,
	}
	flags = append(flags, StorageFlags()...)
	flags = append(flags, AdapterFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Basecall, demultiplex and count a nanopore run",
		Flags:  flags,
		Action: func(c *cli.Context) error { return runAction(c, env) },
	}
}

func runAction(c *cli.Context, env runEnv) error {
	fileCfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		fileCfg = loaded
	}

	cfg, err := buildRunConfig(c, fileCfg, env.newRunID())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitFailure)
	}
	store, err := storageChoiceFrom(c, fileCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid storage configuration: %v", err), exitFailure)
	}
	notifier, err := adapterChoiceFrom(c, fileCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter configuration: %v", err), exitFailure)
	}
	notify, err := notifier.build()
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter configuration: %v", err), exitFailure)
	}
	if notify != nil {
		defer func() { _ = notify.Close() }()
	}

	// The log file lives under the output root, so previous results are
	// guarded before anything is created there.
	if !cfg.Force {
		if err := runtime.CheckOutputRoot(cfg.OutputRoot, false); err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	}
	logFile, err := openRunLog(cfg.OutputRoot, cfg.RunMeta.RunID)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = logFile.Close() }()

	logger := log.NewLoggerWithWriter(&cfg.RunMeta, io.MultiWriter(env.logOut, logFile)).
		With("mode", string(cfg.Mode))
	defer logger.Sync()

	jobID := ""
	if cfg.RunMeta.JobID != nil {
		jobID = *cfg.RunMeta.JobID
	}
	collector := metrics.NewCollector(string(cfg.Mode), cfg.Model, cfg.RunMeta.RunID, jobID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received signal, cancelling run", map[string]any{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	bundles := env.bundles
	if bundles == nil {
		bundles, err = newProvisioner(ctx, cfg.BundleSource, fileCfg.Bundle)
		if err != nil {
			return cli.Exit(fmt.Sprintf("barcode bundle: %v", err), exitFailure)
		}
	}

	start := env.now()
	orchestrator := runtime.NewOrchestrator(runtime.Config{
		Run:       cfg,
		Runner:    env.runner,
		Locator:   env.locator,
		Bundles:   bundles,
		Logger:    logger,
		Collector: collector,
		Now:       env.now,
	})
	result, runErr := orchestrator.Run(ctx)
	duration := env.now().Sub(start)
	if result != nil {
		duration = result.Duration
	}

	// Publishing and notification are best effort: failures are logged
	// and never change the exit code.
	storagePath := ""
	if runErr == nil && store.enabled() {
		path, err := publishRun(ctx, store, cfg.RunMeta.RunID, start, result, collector, logger)
		if err != nil {
			logger.Warn("run record publishing failed", map[string]any{"error": err.Error()})
		} else {
			storagePath = path
		}
	}
	if notify != nil {
		// A canceled run still reports its outcome.
		event := newRunCompletedEvent(cfg, result, runErr, storagePath, env.now(), duration)
		if err := notify.Publish(context.WithoutCancel(ctx), event); err != nil {
			collector.IncBestEffortFailure()
			logger.Warn("run notification failed", map[string]any{
				"adapter": notifier.kind,
				"error":   err.Error(),
			})
		}
	}

	if !c.Bool("quiet") {
		rs := tui.RunSummary{
			RunID:      cfg.RunMeta.RunID,
			OutputRoot: cfg.OutputRoot,
			Duration:   duration,
			Err:        runErr,
		}
		if result != nil {
			rs.Summary = result.Summary
		}
		_, _ = fmt.Fprint(c.App.Writer, tui.RenderRunSummary(rs, c.Bool("no-color")))
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), exitFailure)
	}
	return nil
}

// buildRunConfig resolves the run configuration. Explicit flags win over
// the config file, which wins over flag defaults.
func buildRunConfig(c *cli.Context, fc *config.Config, runID string) (types.RunConfig, error) {
	mode, err := types.ParseMode(stringOpt(c, "mode", fc.Mode))
	if err != nil {
		return types.RunConfig{}, err
	}

	threads := c.Int("threads")
	if !c.IsSet("threads") && fc.Threads > 0 {
		threads = fc.Threads
	}
	gpus := c.Int("gpus")
	if !c.IsSet("gpus") && fc.GPUs != nil {
		gpus = *fc.GPUs
	}

	cfg := types.RunConfig{
		RunMeta:          types.RunMeta{RunID: runID},
		InputDir:         c.String("input"),
		OutputRoot:       c.String("output"),
		Model:            c.String("model"),
		Threads:          threads,
		GPUs:             gpus,
		KeepUnclassified: boolOpt(c, "keep-unclassified", fc.KeepUnclassified),
		Mode:             mode,
		Trim:             boolOpt(c, "trim", fc.Trim),
		Force:            c.Bool("force"),
		ScratchRoot:      stringOpt(c, "scratch", fc.Scratch),
		BundleSource:     stringOpt(c, "bundle-url", fc.Bundle.URL),
		Tools:            fc.Tools.ApplyTools(types.DefaultToolPaths()),
		Primers:          fc.Primers.ApplyPrimers(types.DefaultPrimerSet()),
		Fallback:         fc.Fallback.ApplyColumns(types.DefaultFallbackColumns()),
	}
	if jobID := c.String("job-id"); jobID != "" {
		cfg.RunMeta.JobID = &jobID
	}
	if cfg.BundleSource == "" {
		return types.RunConfig{}, fmt.Errorf("no barcode bundle source: pass --bundle-url, set bundle.url or %s", bundleURLEnv)
	}
	if err := cfg.Validate(); err != nil {
		return types.RunConfig{}, err
	}
	return cfg, nil
}

// stringOpt returns the flag when set non-empty, else the config value,
// else the flag default.
func stringOpt(c *cli.Context, name, fromConfig string) string {
	if v := c.String(name); c.IsSet(name) && v != "" {
		return v
	}
	if fromConfig != "" {
		return fromConfig
	}
	return c.String(name)
}

func boolOpt(c *cli.Context, name string, fromConfig bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fromConfig || c.Bool(name)
}

// openRunLog creates logs/nanoplex-<run_id>.log under the output root.
func openRunLog(root, runID string) (*os.File, error) {
	dir := filepath.Join(root, runtime.DirLogs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "nanoplex-"+runID+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return f, nil
}

// newProvisioner builds a bundle provisioner whose fetcher matches the
// source scheme. The S3 client is only loaded for s3:// sources.
func newProvisioner(ctx context.Context, source string, bc config.BundleConfig) (*bundle.Provisioner, error) {
	fetcher := &bundle.SchemeFetcher{
		HTTP: bundle.NewHTTPFetcher(bc.Timeout.Duration),
		File: bundle.FileFetcher{},
	}
	if _, _, err := bundle.ParseS3URL(source); err == nil {
		s3f, err := bundle.NewS3Fetcher(ctx, bc.Region)
		if err != nil {
			return nil, err
		}
		fetcher.S3 = s3f
	}
	return &bundle.Provisioner{Fetcher: fetcher}, nil
}
