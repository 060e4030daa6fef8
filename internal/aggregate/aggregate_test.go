package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDayFile(t *testing.T, dir string, day time.Time, recs []model.CycleRecord) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, model.DayFileName(day)))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			t.Fatal(err)
		}
	}
}

func rec(ts time.Time, transient int) model.CycleRecord {
	return model.CycleRecord{
		Timestamp:      ts,
		RunID:          "run-test",
		TransientCount: transient,
	}
}

func TestBucket_WindowStatistics(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records := []model.CycleRecord{
		rec(base.Add(5*time.Minute), 3),
		rec(base.Add(20*time.Minute), 7),
		rec(base.Add(45*time.Minute), 2),
		rec(base.Add(70*time.Minute), 10), // next hour
	}

	windows := bucket(records, Options{Window: time.Hour, MinScans: 1})
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}

	w := windows[0]
	if !w.Start.Equal(base) {
		t.Errorf("window start = %v, want %v", w.Start, base)
	}
	if w.NumScans != 3 || w.TotalDevices != 12 || w.MinDevices != 2 || w.MaxDevices != 7 {
		t.Errorf("window stats = %+v", w)
	}
	if w.AvgDevices != 4 {
		t.Errorf("avg = %v, want 4", w.AvgDevices)
	}
	if windows[1].NumScans != 1 || windows[1].TotalDevices != 10 {
		t.Errorf("second window stats = %+v", windows[1])
	}
}

func TestBucket_DropsSparseWindows(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records := []model.CycleRecord{
		rec(base.Add(time.Minute), 3),
		rec(base.Add(2*time.Minute), 4),
		rec(base.Add(61*time.Minute), 9), // lone record in the next hour
	}

	windows := bucket(records, Options{Window: time.Hour, MinScans: 2})
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	if windows[0].NumScans != 2 {
		t.Errorf("surviving window has %d scans, want 2", windows[0].NumScans)
	}
}

func TestRun_WritesDatasetAndMetadata(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	day1 := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	writeDayFile(t, rawDir, day1, []model.CycleRecord{
		rec(day1.Add(time.Minute), 2),
		rec(day1.Add(10*time.Minute), 4),
	})
	writeDayFile(t, rawDir, day2, []model.CycleRecord{
		rec(day2.Add(time.Minute), 6),
	})

	res, err := Run(rawDir, outDir, Options{Window: time.Hour, MinScans: 1}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsRead != 3 {
		t.Errorf("records read = %d, want 3", res.RecordsRead)
	}

	f, err := os.Open(res.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 { // header + two windows
		t.Fatalf("csv has %d rows, want 3", len(rows))
	}
	if rows[1][1] != "3.00" {
		t.Errorf("avg_devices = %q, want 3.00", rows[1][1])
	}
	// 2026-03-01 is a Sunday.
	if rows[1][8] != "true" {
		t.Errorf("is_weekend = %q, want true", rows[1][8])
	}
	if rows[2][8] != "false" {
		t.Errorf("is_weekend = %q for Monday, want false", rows[2][8])
	}

	data, err := os.ReadFile(res.MetadataPath)
	if err != nil {
		t.Fatal(err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.NumWindows != 2 || meta.NumRecords != 3 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.WindowSize != "1h0m0s" {
		t.Errorf("window size = %q", meta.WindowSize)
	}
}

func TestRun_SkipsMalformedLines(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	good, err := json.Marshal(rec(day, 5))
	if err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf("%s\nnot json at all\n%s\n", good, good)
	if err := os.WriteFile(filepath.Join(rawDir, model.DayFileName(day)), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Run(rawDir, outDir, Options{Window: time.Hour, MinScans: 1}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsRead != 2 || res.LinesSkipped != 1 {
		t.Errorf("read=%d skipped=%d, want 2/1", res.RecordsRead, res.LinesSkipped)
	}
}

func TestRun_NoRecordsIsAnError(t *testing.T) {
	if _, err := Run(t.TempDir(), t.TempDir(), Options{Window: time.Hour}, discardLogger()); err == nil {
		t.Fatal("expected error for empty raw dir")
	}
}
