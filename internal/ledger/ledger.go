// Package ledger maintains the per-device lifecycle table.
//
// The Ledger is an in-memory map from anonymized token to device state,
// updated once per scan cycle by the scheduler. It classifies each
// device as new, transient, or stationary from arrival timing alone,
// evicts devices not seen within the absence timeout, and is cleared
// wholesale when the salt epoch rotates (tokens from the old epoch are
// meaningless and keeping their state would link devices across the
// rotation boundary).
//
// The scheduler is the only writer. The RWMutex exists so the status
// API can take read-only snapshots while a cycle is being processed.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

// sampleWindow bounds the per-device ring of recent signal readings.
const sampleWindow = 5

// Options configures classification timing and the signal floor.
type Options struct {
	// AbsenceTimeout is how long a device may go unseen before its
	// entry is evicted. A short window — this notices "device left",
	// it does not classify.
	AbsenceTimeout time.Duration

	// StationaryThreshold is the continuous dwell after which a device
	// is presumed not a pedestrian.
	StationaryThreshold time.Duration

	// MinSignalStrength is the dBm floor. Weaker readings are treated
	// as not observed at all: too far away to count as present.
	MinSignalStrength int
}

// Ledger tracks every live device under the current salt epoch.
type Ledger struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
	opts    Options
}

type deviceState struct {
	firstSeen time.Time
	lastSeen  time.Time
	class     model.Classification

	samples [sampleWindow]int
	next    int // ring write position
	count   int // samples held, <= sampleWindow
}

func (d *deviceState) record(rssi int) {
	d.samples[d.next] = rssi
	d.next = (d.next + 1) % sampleWindow
	if d.count < sampleWindow {
		d.count++
	}
}

func (d *deviceState) avgRSSI() float64 {
	if d.count == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < d.count; i++ {
		sum += d.samples[i]
	}
	return float64(sum) / float64(d.count)
}

// Entry is a read-only snapshot of one tracked device, as served by
// the status API. Tokens are truncated so the roster never exposes a
// full token outside the persisted records.
type Entry struct {
	Token          string               `json:"token"`
	Classification model.Classification `json:"classification"`
	FirstSeen      time.Time            `json:"first_seen"`
	LastSeen       time.Time            `json:"last_seen"`
	DwellSecs      float64              `json:"dwell_secs"`
	IdleSecs       float64              `json:"idle_secs"`
	AvgRSSI        float64              `json:"avg_rssi"`
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	return &Ledger{
		devices: make(map[string]*deviceState),
		opts:    opts,
	}
}

// Observation is the outcome of one sighting.
type Observation struct {
	Classification model.Classification
	// Observed is false when the reading fell below the signal floor
	// and state was left untouched.
	Observed bool
	// NewlyStationary is true on the single cycle a device crosses
	// the stationary threshold.
	NewlyStationary bool
	FirstSeen       time.Time
	Dwell           time.Duration
}

// Observe records a sighting of token at signal strength rssi.
// Readings below the signal floor are dropped without touching state,
// so a device drifting out of range expires through the absence
// timeout instead of vanishing mid-classification.
//
// Called once per device per cycle, after EvictExpired.
func (l *Ledger) Observe(token string, rssi int, now time.Time) Observation {
	if rssi < l.opts.MinSignalStrength {
		return Observation{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.devices[token]
	if !ok {
		state = &deviceState{
			firstSeen: now,
			lastSeen:  now,
			class:     model.ClassNew,
		}
		state.record(rssi)
		l.devices[token] = state
		return Observation{
			Classification: state.class,
			Observed:       true,
			FirstSeen:      state.firstSeen,
		}
	}

	state.lastSeen = now
	state.record(rssi)

	// Classification is monotonic within an epoch: once stationary,
	// a device never drops back to transient without being evicted
	// first.
	newlyStationary := false
	if state.class != model.ClassStationary {
		if now.Sub(state.firstSeen) >= l.opts.StationaryThreshold {
			state.class = model.ClassStationary
			newlyStationary = true
		} else {
			state.class = model.ClassTransient
		}
	}
	return Observation{
		Classification:  state.class,
		Observed:        true,
		NewlyStationary: newlyStationary,
		FirstSeen:       state.firstSeen,
		Dwell:           now.Sub(state.firstSeen),
	}
}

// EvictExpired removes every device not seen within the absence
// timeout and returns how many were removed. Called once per cycle
// before observations; a device that reappears later is brand-new —
// no state carries across an eviction gap.
func (l *Ledger) EvictExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for token, state := range l.devices {
		if now.Sub(state.lastSeen) > l.opts.AbsenceTimeout {
			delete(l.devices, token)
			evicted++
		}
	}
	return evicted
}

// Clear drops every entry. Used at salt rotation, where all tokens
// become invalid at once. Returns the number of entries dropped.
func (l *Ledger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.devices)
	l.devices = make(map[string]*deviceState)
	return n
}

// Len returns the number of tracked devices.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.devices)
}

// Snapshot returns all tracked devices sorted by most recent sighting,
// with tokens truncated to eight characters.
func (l *Ledger) Snapshot(now time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.devices))
	for token, state := range l.devices {
		entries = append(entries, Entry{
			Token:          truncateToken(token),
			Classification: state.class,
			FirstSeen:      state.firstSeen,
			LastSeen:       state.lastSeen,
			DwellSecs:      now.Sub(state.firstSeen).Seconds(),
			IdleSecs:       now.Sub(state.lastSeen).Seconds(),
			AvgRSSI:        state.avgRSSI(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

func truncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
