package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/groblegark/footfall/internal/ledger"
	"github.com/groblegark/footfall/internal/pipeline"
	"github.com/groblegark/footfall/internal/ui"
	"github.com/spf13/cobra"
)

var (
	apiURL     string
	showRoster bool
)

func defaultAPIURL() string {
	if s := os.Getenv("FOOTFALL_API_URL"); s != "" {
		return s
	}
	return "http://localhost:8099"
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the running daemon's loop status and device roster",
	GroupID: "sensor",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st pipeline.Status
		if err := getJSON(apiURL+"/v1/status", &st); err != nil {
			return fmt.Errorf("querying %s: %w", apiURL, err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(ui.RenderAccent("Footfall Sensor"))
		fmt.Printf("  Run ID:        %s\n", st.RunID)
		fmt.Printf("  Uptime:        %s\n", time.Duration(st.UptimeSecs*float64(time.Second)).Round(time.Second))
		fmt.Printf("  Cycles run:    %d\n", st.CyclesRun)
		fmt.Printf("  Cycles logged: %d\n", st.CyclesLogged)
		fmt.Printf("  Salt age:      %s\n", time.Duration(st.EpochAgeSecs*float64(time.Second)).Round(time.Second))
		fmt.Printf("  Devices:       %d\n", st.Devices)
		if st.LastCycle != nil {
			line := fmt.Sprintf("  Last cycle:    %d transient, %d stationary",
				st.LastCycle.TransientCount, st.LastCycle.StationaryCount)
			if st.LastCycle.TransientCount > 0 {
				fmt.Println(ui.RenderGood(line))
			} else {
				fmt.Println(ui.RenderMuted(line))
			}
		}

		if !showRoster {
			return nil
		}

		var roster struct {
			Devices []ledger.Entry `json:"devices"`
		}
		if err := getJSON(apiURL+"/v1/roster", &roster); err != nil {
			return fmt.Errorf("querying roster: %w", err)
		}

		fmt.Println()
		fmt.Println(ui.RenderAccent("Live Devices"))
		if len(roster.Devices) == 0 {
			fmt.Println(ui.RenderMuted("  (none)"))
			return nil
		}
		for _, e := range roster.Devices {
			line := fmt.Sprintf("  %-10s %-10s dwell %4.0fs  idle %3.0fs  %.1f dBm",
				e.Token, e.Classification, e.DwellSecs, e.IdleSecs, e.AvgRSSI)
			if e.Classification == "stationary" {
				fmt.Println(ui.RenderWarn(line))
			} else {
				fmt.Println(line)
			}
		}
		return nil
	},
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	statusCmd.Flags().StringVar(&apiURL, "api-url", defaultAPIURL(), "status API base URL")
	statusCmd.Flags().BoolVar(&showRoster, "roster", false, "also show the live device roster")
}
