package main

import (
	"encoding/json"
	"fmt"

	"github.com/groblegark/footfall/internal/config"
	"github.com/groblegark/footfall/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Validate the configuration file and show effective values",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := map[string]any{
				"scan_interval":        cfg.ScanInterval().String(),
				"scan_duration":        cfg.ScanDuration().String(),
				"scan_command":         cfg.Scan.Command,
				"absence_timeout":      cfg.AbsenceTimeout().String(),
				"stationary_threshold": cfg.StationaryThreshold().String(),
				"min_signal_strength":  cfg.Tracking.MinSignalStrength,
				"rotation_period":      cfg.RotationPeriod().String(),
				"log_empty_cycles":     cfg.Logging.LogEmptyCycles,
				"data_dir":             cfg.Storage.DataDir,
				"mount_roots":          cfg.Storage.MountRoots,
				"events":               cfg.Events.NATSURL != "",
				"postgres_sink":        cfg.Sink.PostgresURL != "",
				"archive":              cfg.Archive.S3Bucket != "",
				"api_addr":             cfg.API.Addr,
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(ui.RenderAccent("Configuration") + ui.RenderMuted(" ("+configPath+")"))
		fmt.Printf("  Scan:      every %s, %s sweeps via %s\n",
			cfg.ScanInterval(), cfg.ScanDuration(), cfg.Scan.Command)
		fmt.Printf("  Tracking:  absence %s, stationary after %s, floor %d dBm\n",
			cfg.AbsenceTimeout(), cfg.StationaryThreshold(), cfg.Tracking.MinSignalStrength)
		fmt.Printf("  Privacy:   salt rotates every %s\n", cfg.RotationPeriod())
		fmt.Printf("  Storage:   %s (mount roots: %v)\n", cfg.Storage.DataDir, cfg.Storage.MountRoots)
		fmt.Printf("  Gate:      log_empty_cycles=%v\n", cfg.Logging.LogEmptyCycles)
		fmt.Printf("  Events:    %s\n", enabledOr(cfg.Events.NATSURL != "", "NATS"))
		fmt.Printf("  Postgres:  %s\n", enabledOr(cfg.Sink.PostgresURL != "", "sink"))
		fmt.Printf("  Archive:   %s\n", enabledOr(cfg.Archive.S3Bucket != "", "S3"))
		fmt.Printf("  API:       %s\n", enabledOr(cfg.API.Addr != "", cfg.API.Addr))
		fmt.Println(ui.RenderGood("Configuration is valid."))
		return nil
	},
}

func enabledOr(on bool, what string) string {
	if on {
		return "enabled (" + what + ")"
	}
	return "disabled"
}
