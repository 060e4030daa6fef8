package main

import (
	"os"

	"github.com/groblegark/footfall/internal/ui"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
)

func defaultConfigPath() string {
	if p := os.Getenv("FOOTFALL_CONFIG"); p != "" {
		return p
	}
	return "/etc/footfall/footfall.toml"
}

var rootCmd = &cobra.Command{
	Use:   "footfall <command>",
	Short: "Anonymized Bluetooth pedestrian traffic sensor",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the TOML configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sensor", Title: "Sensor:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
	cobra.EnableCommandSorting = false

	// Sensor
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)

	// Data
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(configCmd)

	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
