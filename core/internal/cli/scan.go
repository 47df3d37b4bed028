package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"bitprobe/collectors"
	"bitprobe/core/internal/config"
	"bitprobe/core/internal/console"
	"bitprobe/core/internal/logging"
	"bitprobe/core/internal/pipeline"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// GhidraTargetEnv names the environment fallback for --ghidra-target.
const GhidraTargetEnv = "GHIDRA_TARGET"

type scanOptions struct {
	configPath      string
	output          string
	ghidraTarget    string
	iocFile         string
	trafficDuration time.Duration
	procmonDuration time.Duration
	runID           string
	verbose         bool
}

// apply overrides file values with flags the user set explicitly.
func (o scanOptions) apply(flags *pflag.FlagSet, cfg config.Config, getenv func(string) string) config.Config {
	if flags.Changed("output") {
		cfg.Output = o.output
	}
	if flags.Changed("ioc-file") {
		cfg.IOCFile = o.iocFile
	}
	if flags.Changed("traffic-duration") {
		cfg.Capture.TrafficDuration = o.trafficDuration
	}
	if flags.Changed("procmon-duration") {
		cfg.Capture.ProcessMonitorDuration = o.procmonDuration
	}
	switch {
	case flags.Changed("ghidra-target"):
		cfg.GhidraTarget = o.ghidraTarget
	case getenv(GhidraTargetEnv) != "":
		cfg.GhidraTarget = getenv(GhidraTargetEnv)
	}
	return cfg
}

func NewScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run every collector and compile the master forensic report",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			cfg, err := config.Load(fs, opts.configPath)
			if err != nil {
				return err
			}
			cfg = opts.apply(cmd.Flags(), cfg, os.Getenv).Resolve()
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			if opts.runID == "" {
				opts.runID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScan(ctx, cmd, fs, cfg, opts)
		},
	}

	bindScanFlags(cmd.Flags(), &opts)
	return cmd
}

func bindScanFlags(f *pflag.FlagSet, opts *scanOptions) {
	def := config.Default()
	f.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	f.StringVar(&opts.output, "output", def.Output, "Base directory for tools, artifacts, reports and logs")
	f.StringVar(&opts.ghidraTarget, "ghidra-target", "", "Binary for Ghidra headless analysis (default: $"+GhidraTargetEnv+" or a system binary)")
	f.StringVar(&opts.iocFile, "ioc-file", "", "IOC list file (one pattern per line)")
	f.DurationVar(&opts.trafficDuration, "traffic-duration", def.Capture.TrafficDuration, "Network traffic capture duration")
	f.DurationVar(&opts.procmonDuration, "procmon-duration", def.Capture.ProcessMonitorDuration, "Process Monitor capture duration")
	f.StringVar(&opts.runID, "run-id", "", "Run ID (default: random UUID)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging on stderr")
}

func runScan(ctx context.Context, cmd *cobra.Command, fs afero.Fs, cfg config.Config, opts scanOptions) error {
	layout := evidence.NewLayout(cfg.Output)
	layout.Tools = cfg.ToolsDir
	if err := layout.Ensure(fs); err != nil {
		return err
	}

	started := time.Now()
	log, logPath, closeLog, err := logging.New(fs, layout.Logs, started, opts.verbose)
	if err != nil {
		return errors.Wrap(err, "open run log")
	}
	defer func() { _ = closeLog() }()

	runner := tools.OSRunner{}
	resolver := tools.NewResolver(fs, cfg.ToolsDir, tools.Merge(tools.HostCatalog(), cfg.Tools), runner)

	con := console.New(cmd.OutOrStdout())
	con.Banner("BITPROBE FORENSIC SCAN")
	con.Info("Run ID: %s", opts.runID)
	con.Info("Output: %s", cfg.Output)
	con.Info("Log file: %s", logPath)

	o := pipeline.New(pipeline.DefaultCollectors(cfg), pipeline.Options{
		RunID:  opts.runID,
		Layout: layout,
		Fs:     fs,
		Tools:  resolver,
		Runner: runner,
		Log:    log,
		OnStart: func(i, n int, c collectors.Collector) {
			con.Phase(i, n, c.Title())
		},
		OnReport: func(i, n int, ref report.Ref) {
			con.Result(ref)
		},
	})

	res, err := o.Run(ctx)
	if errors.Is(err, pipeline.ErrInterrupted) {
		con.Warn("Scan interrupted after %d collectors", len(res.Reports))
		con.Warn("Partial master report: %s", res.MasterPath)
		return err
	}
	if err != nil {
		log.Error("scan failed", zap.Error(err))
		return err
	}

	con.Summary(res.Counts())
	con.Info("Master report: %s", res.MasterPath)
	if res.ManifestPath != "" {
		con.Info("Manifest: %s", res.ManifestPath)
	}
	return nil
}
