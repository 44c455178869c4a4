package main

import (
	"github.com/spf13/cobra"

	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/pipeline"
)

var (
	purgeYes     bool
	purgeDataDir string
	purgePlotDir string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove the data and plot directories",
	Long: `Remove the archive and comparison directories recursively. Each
directory is confirmed first unless --yes is given. Read-only entries are
made writable and the removal retried.`,
	Example: `  swx-archive purge
  swx-archive purge --yes --data-dir /srv/swx/data`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Do not ask for confirmation")
	purgeCmd.Flags().StringVar(&purgeDataDir, "data-dir", "", "Archive root directory")
	purgeCmd.Flags().StringVar(&purgePlotDir, "plot-dir", "", "Comparison export directory")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = purgeDataDir
	}
	if cmd.Flags().Changed("plot-dir") {
		cfg.PlotDir = purgePlotDir
	}
	cfg.AssumeYes = purgeYes

	log, err := common.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := pipeline.New(cfg, log, nil)
	if err != nil {
		return err
	}
	r.Confirm = confirmPurge
	r.Purge()
	return nil
}
