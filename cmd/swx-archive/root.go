package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/solar"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swx-archive",
	Short: "Space-weather time-series archiver",
	Long: `swx-archive fetches space-weather time series from public NOAA SWPC,
GFZ Potsdam, NMDB and SIDC endpoints and merges each one into a local
archive file. Re-fetching an overlapping range never duplicates rows.

Examples:
  swx-archive run                                  # all sources, default range
  swx-archive run --sources kp-1m,goes-protons     # selected sources
  swx-archive run --start 2025-04-01 --stations OULU,APT --format parquet
  swx-archive run --interactive                    # prompt for settings
  swx-archive sources                              # list the source table
  swx-archive purge --yes                          # remove data and plots`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	solar.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(purgeCmd)
}

// loadConfig builds the config from defaults, env and the optional file.
func loadConfig() (*common.Config, error) {
	cfg := common.DefaultConfig()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func printBanner(cfg *common.Config) {
	fmt.Println("=========================================================")
	fmt.Printf("SWX Archive v%s\n", Version)
	fmt.Println("=========================================================")
	fmt.Printf("Range:       %s .. %s\n", cfg.Start, cfg.End)
	fmt.Printf("Data dir:    %s (%s)\n", cfg.DataDir, cfg.Format)
	fmt.Printf("Plot dir:    %s\n", cfg.PlotDir)
	fmt.Printf("Timeout:     %v\n", cfg.HTTPTimeout)
	if cfg.ClickHouse.Enabled() {
		fmt.Printf("ClickHouse:  %s (%s.%s)\n", cfg.ClickHouse.Host, cfg.ClickHouse.Database, cfg.ClickHouse.Table)
	}
	fmt.Println()
}
