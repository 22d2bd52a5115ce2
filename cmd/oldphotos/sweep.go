package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oldphotos/api/internal/artifact"
	"github.com/oldphotos/api/internal/cleanup"
	"github.com/oldphotos/api/internal/config"
	"github.com/oldphotos/api/internal/store"
)

var sweepMaxAgeHours float64

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete aged artifacts once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		maxAge := cfg.Cleanup.MaxAgeHours
		if cmd.Flags().Changed("max-age-hours") {
			maxAge = sweepMaxAgeHours
		}

		files, err := artifact.NewStore(cfg.Storage.UploadsDir, cfg.Storage.ResultsDir, cfg.Storage.MasksDir)
		if err != nil {
			return err
		}

		sweeper := cleanup.NewSweeper(files, store.NewPhotoStore(), store.NewJobStore(), nil,
			time.Duration(cfg.Cleanup.IntervalHours*float64(time.Hour)),
			time.Duration(maxAge*float64(time.Hour)))
		removed, _, _ := sweeper.SweepOnce(time.Now())
		fmt.Printf("Removed %d file(s) older than %.1fh\n", removed, maxAge)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Float64Var(&sweepMaxAgeHours, "max-age-hours", 2, "Age bound in hours; older artifacts are deleted")
	rootCmd.AddCommand(sweepCmd)
}
