package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/pipeline"
	"github.com/KI7MT/swx-archive/internal/sink"
)

// run flags
var (
	runStart       string
	runEnd         string
	runSourceIDs   []string
	runStations    []string
	runDataDir     string
	runPlotDir     string
	runFormat      string
	runPurgeFirst  bool
	runYes         bool
	runInteractive bool
	runCHHost      string
	runGOESDays    int
	runLogLevel    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the selected sources and merge them into the archive",
	Long: `Fetch every selected source in turn and merge the batch into its archive
file. A failing source is reported and the run continues; the command exits
non-zero if any source failed.`,
	Example: `  swx-archive run
  swx-archive run --sources station --stations OULU,APT --start 2025-04-01
  swx-archive run --config swx.yaml --ch-host localhost:9000`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runStart, "start", "", "Start date (YYYY-MM-DD or DDMMYYYY)")
	f.StringVar(&runEnd, "end", "", "End date, inclusive (YYYY-MM-DD or DDMMYYYY)")
	f.StringSliceVar(&runSourceIDs, "sources", nil, "Source ids to run (default all)")
	f.StringSliceVar(&runStations, "stations", nil, "NMDB station codes")
	f.StringVar(&runDataDir, "data-dir", "", "Archive root directory")
	f.StringVar(&runPlotDir, "plot-dir", "", "Comparison export directory")
	f.StringVar(&runFormat, "format", "", "Archive format: csv, csv.gz, csv.zst, parquet")
	f.BoolVar(&runPurgeFirst, "purge", false, "Remove data and plot directories before the run")
	f.BoolVarP(&runYes, "yes", "y", false, "Do not ask before purging")
	f.BoolVarP(&runInteractive, "interactive", "i", false, "Prompt for dates, sources and stations")
	f.StringVar(&runCHHost, "ch-host", "", "Mirror batches to ClickHouse at host:port")
	f.IntVar(&runGOESDays, "goes-days", 0, "GOES rolling window: 1, 3 or 7 days")
	f.StringVar(&runLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// applyRunFlags overlays explicitly set flags onto cfg.
func applyRunFlags(flags *pflag.FlagSet, cfg *common.Config) error {
	if flags.Changed("start") {
		d, err := common.ParseDate(runStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		cfg.Start = d
	}
	if flags.Changed("end") {
		d, err := common.ParseDate(runEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		cfg.End = d
	}
	if flags.Changed("sources") {
		cfg.Sources = splitList(runSourceIDs)
	}
	if flags.Changed("stations") {
		cfg.Stations = runStations
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = runDataDir
	}
	if flags.Changed("plot-dir") {
		cfg.PlotDir = runPlotDir
	}
	if flags.Changed("format") {
		cfg.Format = runFormat
	}
	if flags.Changed("purge") {
		cfg.Purge = runPurgeFirst
	}
	if flags.Changed("yes") {
		cfg.AssumeYes = runYes
	}
	if flags.Changed("ch-host") {
		cfg.ClickHouse.Host = runCHHost
	}
	if flags.Changed("goes-days") {
		cfg.GOESDays = runGOESDays
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = runLogLevel
	}
	return nil
}

// wantsPrompt reports whether the run should ask for its settings: either
// --interactive, or interactive: true in the config with no run flags set.
func wantsPrompt(flags *pflag.FlagSet, cfg *common.Config) bool {
	if runInteractive {
		return true
	}
	if !cfg.Interactive {
		return false
	}
	set := 0
	flags.Visit(func(f *pflag.Flag) {
		if f.Name != "config" {
			set++
		}
	})
	return set == 0 && isTerminal()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd.Flags(), cfg); err != nil {
		return err
	}

	if wantsPrompt(cmd.Flags(), cfg) {
		if !isTerminal() {
			return fmt.Errorf("interactive mode needs a terminal on stdin")
		}
		askConfig(cfg, promptAsk, os.Stdout)
	}

	cfg.Stations = common.NormalizeStations(cfg.Stations)
	if len(cfg.Stations) == 0 {
		cfg.Stations = append([]string(nil), common.DefaultStations...)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := common.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown requested...")
		cancel()
	}()

	var mirror sink.Mirror
	if cfg.ClickHouse.Enabled() {
		log.Infof("Connecting to ClickHouse at %s...", cfg.ClickHouse.Host)
		conn, err := sink.Open(ctx, cfg.ClickHouse)
		if err != nil {
			return err
		}
		defer conn.Close()
		log.Infof("ClickHouse table: %s", conn.Table())
		mirror = conn
	}

	r, err := pipeline.New(cfg, log, mirror)
	if err != nil {
		return err
	}
	r.Confirm = confirmPurge

	runErr := r.Run(ctx)
	fmt.Println()
	r.Stats().PrintSummary(log)

	if runErr != nil {
		return runErr
	}
	if n := r.Stats().Failed(); n > 0 {
		return fmt.Errorf("%d source(s) failed", n)
	}
	return nil
}

// splitList flattens comma-separated values and lower-cases source ids.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
