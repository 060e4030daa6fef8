package ledger

import (
	"testing"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

var testOpts = Options{
	AbsenceTimeout:      25 * time.Second,
	StationaryThreshold: 50 * time.Second,
	MinSignalStrength:   -85,
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tick returns t0 advanced by n 10-second cycles.
func tick(n int) time.Time {
	return t0.Add(time.Duration(n) * 10 * time.Second)
}

func TestObserve_FirstSightingIsNew(t *testing.T) {
	l := New(testOpts)

	obs := l.Observe("tok-a", -60, tick(0))
	if !obs.Observed {
		t.Fatal("strong reading not counted as observed")
	}
	if obs.Classification != model.ClassNew {
		t.Errorf("classification = %s, want new", obs.Classification)
	}
	if l.Len() != 1 {
		t.Errorf("ledger size = %d, want 1", l.Len())
	}
}

func TestObserve_ResightingIsTransient(t *testing.T) {
	l := New(testOpts)

	l.Observe("tok-a", -60, tick(0))
	obs := l.Observe("tok-a", -62, tick(1))
	if obs.Classification != model.ClassTransient {
		t.Errorf("classification = %s, want transient", obs.Classification)
	}
	if obs.Dwell != 10*time.Second {
		t.Errorf("dwell = %v, want 10s", obs.Dwell)
	}
}

func TestObserve_StationaryBoundary(t *testing.T) {
	l := New(testOpts)

	// Threshold is 50s = 5 cycles of dwell. Observed on cycles 0..4,
	// dwell at cycle 4 is 40s: still transient.
	var obs Observation
	for n := 0; n <= 4; n++ {
		obs = l.Observe("tok-a", -60, tick(n))
	}
	if obs.Classification != model.ClassTransient {
		t.Errorf("at dwell below threshold: %s, want transient", obs.Classification)
	}

	// Cycle 5: dwell hits exactly 50s — stationary on that cycle.
	obs = l.Observe("tok-a", -60, tick(5))
	if obs.Classification != model.ClassStationary {
		t.Errorf("at dwell == threshold: %s, want stationary", obs.Classification)
	}
	if !obs.NewlyStationary {
		t.Error("threshold crossing not flagged as newly stationary")
	}
}

func TestObserve_StationaryIsSticky(t *testing.T) {
	l := New(testOpts)

	for n := 0; n <= 5; n++ {
		l.Observe("tok-a", -60, tick(n))
	}
	obs := l.Observe("tok-a", -60, tick(6))
	if obs.Classification != model.ClassStationary {
		t.Errorf("classification = %s, want stationary to persist", obs.Classification)
	}
	if obs.NewlyStationary {
		t.Error("already-stationary device flagged as newly stationary again")
	}
}

func TestObserve_WeakReadingIgnored(t *testing.T) {
	l := New(testOpts)

	l.Observe("tok-a", -60, tick(0))

	// A weak reading is not an observation: last_seen stays put.
	if obs := l.Observe("tok-a", -90, tick(1)); obs.Observed {
		t.Error("weak reading counted as observed")
	}

	// With last_seen frozen at cycle 0, the entry expires once the
	// absence timeout passes, even though weak readings kept arriving.
	if n := l.EvictExpired(tick(3)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
}

func TestObserve_WeakFirstSightingCreatesNothing(t *testing.T) {
	l := New(testOpts)

	if obs := l.Observe("tok-a", -99, tick(0)); obs.Observed {
		t.Error("weak reading counted as observed")
	}
	if l.Len() != 0 {
		t.Errorf("ledger size = %d, want 0", l.Len())
	}
}

func TestEvictExpired_RemovesAbsentDevices(t *testing.T) {
	l := New(testOpts)

	l.Observe("tok-a", -60, tick(0))
	l.Observe("tok-b", -60, tick(2))

	// At cycle 5, tok-a has been absent 50s (> 25s timeout), tok-b 30s.
	n := l.EvictExpired(tick(5))
	if n != 2 {
		t.Fatalf("evicted %d, want 2", n)
	}
	if l.Len() != 0 {
		t.Errorf("ledger size = %d, want 0", l.Len())
	}
}

func TestEvictExpired_ReappearanceIsBrandNew(t *testing.T) {
	l := New(testOpts)

	for n := 0; n <= 3; n++ {
		l.Observe("tok-a", -60, tick(n))
	}
	l.EvictExpired(tick(7))

	// Same token resurfacing after eviction starts over at new:
	// no dwell, no classification, nothing carried across the gap.
	obs := l.Observe("tok-a", -60, tick(7))
	if obs.Classification != model.ClassNew {
		t.Errorf("reappearing device classified %s, want new", obs.Classification)
	}
	if obs.Dwell != 0 {
		t.Errorf("reappearing device has dwell %v, want 0", obs.Dwell)
	}
}

func TestClear_DropsEverything(t *testing.T) {
	l := New(testOpts)

	l.Observe("tok-a", -60, tick(0))
	l.Observe("tok-b", -70, tick(0))

	if n := l.Clear(); n != 2 {
		t.Errorf("cleared %d, want 2", n)
	}
	if l.Len() != 0 {
		t.Errorf("ledger size = %d after clear", l.Len())
	}
}

func TestSnapshot_SortedAndTruncated(t *testing.T) {
	l := New(testOpts)

	l.Observe("aaaaaaaaaaaaaaaa", -60, tick(0))
	l.Observe("bbbbbbbbbbbbbbbb", -70, tick(1))

	entries := l.Snapshot(tick(1))
	if len(entries) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(entries))
	}
	if entries[0].Token != "bbbbbbbb" {
		t.Errorf("first entry = %q, want most recent, truncated", entries[0].Token)
	}
	if entries[1].DwellSecs != 10 {
		t.Errorf("dwell = %v, want 10", entries[1].DwellSecs)
	}
}

func TestSnapshot_AverageRSSIWindow(t *testing.T) {
	l := New(testOpts)

	// Seven readings; the ring keeps the last five: -64..-68.
	for n := 0; n < 7; n++ {
		l.Observe("tok-a", -62-n, tick(n))
	}

	entries := l.Snapshot(tick(6))
	if len(entries) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(entries))
	}
	if got := entries[0].AvgRSSI; got != -66 {
		t.Errorf("avg rssi = %v, want -66", got)
	}
}
