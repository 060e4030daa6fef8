// Package aggregate turns raw day files into a windowed traffic
// dataset. It is an offline batch step run by `footfall aggregate`,
// entirely separate from the live scan loop.
//
// Absent cycles are zeros, not gaps: when the daemon suppresses empty
// cycles, a window with few records means "quiet", and the num_scans
// column lets downstream consumers weigh that.
package aggregate

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

const (
	// DatasetName is the CSV file written to the processed dir.
	DatasetName = "processed_traffic_data.csv"
	// MetadataName is the JSON sidecar describing the dataset.
	MetadataName = "processed_traffic_data_metadata.json"
)

// Options controls windowing.
type Options struct {
	// Window is the bucket size records are aggregated into.
	Window time.Duration
	// MinScans drops windows with fewer records than this.
	MinScans int
}

// Window is one aggregated time bucket.
type Window struct {
	Start        time.Time
	AvgDevices   float64
	MinDevices   int
	MaxDevices   int
	TotalDevices int
	NumScans     int
}

// Result summarizes one aggregation run.
type Result struct {
	RecordsRead  int
	LinesSkipped int
	Windows      []Window
	CSVPath      string
	MetadataPath string
}

// Run reads every scan_*.jsonl file under rawDir, buckets the records
// into fixed windows, and writes the dataset and its metadata sidecar
// into outDir.
func Run(rawDir, outDir string, opts Options, logger *slog.Logger) (*Result, error) {
	records, skipped, err := loadRecords(rawDir, logger)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no cycle records found under %s", rawDir)
	}

	windows := bucket(records, opts)
	logger.Info("aggregated cycle records",
		"records", len(records),
		"windows", len(windows),
		"window_size", opts.Window)

	res := &Result{
		RecordsRead:  len(records),
		LinesSkipped: skipped,
		Windows:      windows,
		CSVPath:      filepath.Join(outDir, DatasetName),
		MetadataPath: filepath.Join(outDir, MetadataName),
	}
	if err := writeCSV(res.CSVPath, windows); err != nil {
		return nil, err
	}
	if err := writeMetadata(res.MetadataPath, res, opts); err != nil {
		return nil, err
	}
	return res, nil
}

// loadRecords parses every day file in order. Malformed lines are
// counted and skipped; a sensor that crashed mid-write should not make
// a whole day unprocessable.
func loadRecords(rawDir string, logger *slog.Logger) ([]model.CycleRecord, int, error) {
	paths, err := filepath.Glob(filepath.Join(rawDir, "scan_*.jsonl"))
	if err != nil {
		return nil, 0, fmt.Errorf("listing day files: %w", err)
	}
	sort.Strings(paths)

	var records []model.CycleRecord
	skipped := 0
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("opening day file: %w", err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var rec model.CycleRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				skipped++
				continue
			}
			records = append(records, rec)
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
	}
	if skipped > 0 {
		logger.Warn("skipped malformed record lines", "count", skipped)
	}
	return records, skipped, nil
}

// bucket groups records into fixed UTC-truncated windows and computes
// per-window statistics over the transient counts.
func bucket(records []model.CycleRecord, opts Options) []Window {
	byStart := make(map[time.Time]*Window)
	for _, rec := range records {
		start := rec.Timestamp.UTC().Truncate(opts.Window)
		w, ok := byStart[start]
		if !ok {
			w = &Window{Start: start, MinDevices: rec.TransientCount, MaxDevices: rec.TransientCount}
			byStart[start] = w
		}
		if rec.TransientCount < w.MinDevices {
			w.MinDevices = rec.TransientCount
		}
		if rec.TransientCount > w.MaxDevices {
			w.MaxDevices = rec.TransientCount
		}
		w.TotalDevices += rec.TransientCount
		w.NumScans++
	}

	windows := make([]Window, 0, len(byStart))
	for _, w := range byStart {
		if w.NumScans < opts.MinScans {
			continue
		}
		w.AvgDevices = float64(w.TotalDevices) / float64(w.NumScans)
		windows = append(windows, *w)
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows
}

var csvHeader = []string{
	"timestamp", "avg_devices", "min_devices", "max_devices",
	"total_devices", "num_scans", "hour", "day_of_week", "is_weekend",
}

func writeCSV(path string, windows []Window) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	for _, win := range windows {
		weekday := int(win.Start.Weekday())
		row := []string{
			win.Start.Format(time.RFC3339),
			strconv.FormatFloat(win.AvgDevices, 'f', 2, 64),
			strconv.Itoa(win.MinDevices),
			strconv.Itoa(win.MaxDevices),
			strconv.Itoa(win.TotalDevices),
			strconv.Itoa(win.NumScans),
			strconv.Itoa(win.Start.Hour()),
			strconv.Itoa(weekday),
			strconv.FormatBool(weekday == 0 || weekday == 6),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing dataset: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return f.Close()
}

type metadata struct {
	NumWindows  int       `json:"num_windows"`
	NumRecords  int       `json:"num_records"`
	WindowSize  string    `json:"window_size"`
	MinScans    int       `json:"min_scans"`
	RangeStart  time.Time `json:"range_start"`
	RangeEnd    time.Time `json:"range_end"`
	Columns     []string  `json:"columns"`
	ProcessedAt time.Time `json:"processed_at"`
}

func writeMetadata(path string, res *Result, opts Options) error {
	meta := metadata{
		NumWindows:  len(res.Windows),
		NumRecords:  res.RecordsRead,
		WindowSize:  opts.Window.String(),
		MinScans:    opts.MinScans,
		Columns:     csvHeader,
		ProcessedAt: time.Now().UTC(),
	}
	if len(res.Windows) > 0 {
		meta.RangeStart = res.Windows[0].Start
		meta.RangeEnd = res.Windows[len(res.Windows)-1].Start
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}
