package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KI7MT/swx-archive/internal/archive"
	"github.com/KI7MT/swx-archive/internal/solar"
)

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Short:   "List available data sources",
	Aliases: []string{"list"},
	RunE:    runSources,
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Available space-weather sources:\n\n")
	for _, s := range solar.Registry() {
		key := strings.Join(s.Keys, ", ")
		if s.AutoKey {
			key = "auto (" + strings.Join(archive.TimeColumnCandidates, "/") + ")"
		}
		file := s.File
		if s.PerStation {
			file = "<STATION>"
		}
		fmt.Printf("  %-16s %s\n", s.ID, s.Desc)
		fmt.Printf("                   URL:  %s\n", s.URL)
		fmt.Printf("                   File: %s\n", cfg.ArchivePath(s.Dir, file))
		fmt.Printf("                   Key:  %s (collision: %s)\n\n", key, cfg.CollisionFor(s.ID, s.Collision))
	}
	return nil
}
