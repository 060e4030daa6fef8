package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/groblegark/footfall/internal/aggregate"
	"github.com/groblegark/footfall/internal/config"
	"github.com/groblegark/footfall/internal/storage"
	"github.com/spf13/cobra"
)

var (
	aggWindow   time.Duration
	aggMinScans int
)

var aggregateCmd = &cobra.Command{
	Use:     "aggregate",
	Short:   "Build the windowed traffic dataset from raw day files",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store := storage.NewManager(cfg.Storage.DataDir, cfg.Storage.MountRoots, logger)
		rawDir, err := store.DataDir("raw")
		if err != nil {
			return err
		}
		outDir, err := store.DataDir("processed")
		if err != nil {
			return err
		}

		res, err := aggregate.Run(rawDir, outDir, aggregate.Options{
			Window:   aggWindow,
			MinScans: aggMinScans,
		}, logger)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := map[string]any{
				"records_read":  res.RecordsRead,
				"lines_skipped": res.LinesSkipped,
				"windows":       len(res.Windows),
				"dataset":       res.CSVPath,
				"metadata":      res.MetadataPath,
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Aggregated %d records into %d windows\n", res.RecordsRead, len(res.Windows))
		if res.LinesSkipped > 0 {
			fmt.Printf("Skipped %d malformed lines\n", res.LinesSkipped)
		}
		fmt.Printf("Dataset:  %s\n", res.CSVPath)
		fmt.Printf("Metadata: %s\n", res.MetadataPath)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().DurationVar(&aggWindow, "window", time.Hour, "aggregation window size")
	aggregateCmd.Flags().IntVar(&aggMinScans, "min-scans", 1, "drop windows with fewer records than this")
}
