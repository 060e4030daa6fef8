// Package pipeline drives the scan cycle loop.
//
// The Scheduler owns the salt epoch and the device ledger for the
// lifetime of the process and is their only writer. Each cycle it
// checks salt rotation, runs one radio sweep, feeds the anonymized
// sightings through the ledger, builds an immutable cycle summary,
// and hands it to the gate, the sinks, and the event publisher.
//
// Only privacy-compromising failures stop the loop: a salt rotation
// that cannot generate a fresh secret is fatal. A timed-out sweep is
// a failed cycle with an empty result; a sink that rejects a write
// costs that one record. Both are logged and the loop continues.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/footfall/internal/anonymize"
	"github.com/groblegark/footfall/internal/events"
	"github.com/groblegark/footfall/internal/ledger"
	"github.com/groblegark/footfall/internal/model"
	"github.com/groblegark/footfall/internal/scan"
	"github.com/groblegark/footfall/internal/sink"
)

// scanCeilingFactor bounds a sweep at this multiple of the configured
// scan duration. A sweep past the ceiling is a failed cycle, not a
// wedged scheduler.
const scanCeilingFactor = 2

// Options configures the scheduler.
type Options struct {
	RunID        string
	ScanInterval time.Duration
	ScanDuration time.Duration
	Gate         Gate

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Scheduler runs the Idle/Scanning/Processing cycle loop.
type Scheduler struct {
	epoch     *anonymize.Epoch
	ledger    *ledger.Ledger
	scanner   scan.Scanner
	sinks     []sink.Sink
	publisher events.Publisher
	logger    *slog.Logger
	opts      Options
	clock     func() time.Time

	mu           sync.RWMutex
	startedAt    time.Time
	cyclesRun    int64
	cyclesLogged int64
	lastSummary  *model.CycleSummary
}

// NewScheduler wires the pipeline together. The scheduler takes sole
// ownership of epoch and led; nothing else may mutate them afterward.
func NewScheduler(
	epoch *anonymize.Epoch,
	led *ledger.Ledger,
	scanner scan.Scanner,
	sinks []sink.Sink,
	publisher events.Publisher,
	logger *slog.Logger,
	opts Options,
) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		epoch:     epoch,
		ledger:    led,
		scanner:   scanner,
		sinks:     sinks,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		clock:     clock,
	}
}

// Run executes the cycle loop until ctx is canceled or a fatal error
// occurs. The first cycle starts immediately; subsequent cycles start
// on the interval ticker. Ticks that arrive while a cycle is still in
// flight are dropped, so overrunning cycles skip rather than stack.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = s.clock()
	s.mu.Unlock()

	s.logger.Info("scan loop started",
		"run_id", s.opts.RunID,
		"interval", s.opts.ScanInterval,
		"duration", s.opts.ScanDuration)
	if !s.opts.Gate.LogEmptyCycles {
		s.logger.Info("empty cycles will not be persisted; a missing record means nothing was present")
	}

	if err := s.runCycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.RLock()
			cycles := s.cyclesRun
			s.mu.RUnlock()
			s.logger.Info("scan loop stopped", "cycles", cycles)
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// runCycle executes one full cycle at the current clock time. It
// returns an error only for fatal conditions; everything cycle-local
// is logged and absorbed. Once the sweep has returned, processing
// always runs to completion — the ledger is never left half-updated,
// even during shutdown.
func (s *Scheduler) runCycle(ctx context.Context) error {
	now := s.clock()

	if err := s.maybeRotate(ctx, now); err != nil {
		return err
	}

	readings := s.sweep(ctx)
	if ctx.Err() != nil && readings == nil {
		// Shutdown interrupted the sweep; there is nothing to process.
		return nil
	}

	summary := s.process(readings, now)

	s.mu.Lock()
	s.cyclesRun++
	summary.Cycle = s.cyclesRun
	if summary.Logged {
		s.cyclesLogged++
	}
	s.lastSummary = summary
	s.mu.Unlock()

	if summary.Logged {
		s.persist(ctx, summary)
	}
	s.logCycle(summary)
	return nil
}

// maybeRotate rotates the salt and clears the ledger when the epoch
// has expired. The two happen in one logical step: tokens computed
// under the old secret must never coexist with the new one.
func (s *Scheduler) maybeRotate(ctx context.Context, now time.Time) error {
	if !s.epoch.Due(now) {
		return nil
	}

	// The status API reads epoch age under s.mu; rotation mutates the
	// epoch under the same lock.
	s.mu.Lock()
	dropped := s.ledger.Clear()
	err := s.epoch.Rotate(now)
	s.mu.Unlock()
	if err != nil {
		// Continuing would stretch the old salt past its rotation
		// deadline, so the loop halts instead.
		return err
	}

	s.logger.Info("salt rotated", "devices_dropped", dropped)
	if err := s.publisher.Publish(ctx, events.TopicSaltRotated, events.SaltRotated{
		RotatedAt:      now,
		DevicesDropped: dropped,
	}); err != nil {
		s.logger.Warn("publishing salt rotation event", "err", err)
	}
	return nil
}

// sweep runs one radio sweep under the hard ceiling. Any failure
// degrades to an empty result.
func (s *Scheduler) sweep(ctx context.Context) []model.Reading {
	scanCtx, cancel := context.WithTimeout(ctx, scanCeilingFactor*s.opts.ScanDuration)
	defer cancel()

	readings, err := s.scanner.Scan(scanCtx)
	switch {
	case err == nil:
		return readings
	case errors.Is(err, scan.ErrTimeout):
		s.logger.Warn("scan exceeded hard ceiling, treating cycle as empty")
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		s.logger.Error("scan failed, treating cycle as empty", "err", err)
		return nil
	}
}

// process updates the ledger for every reading and builds the cycle
// summary. Duplicate addresses within one sweep keep their strongest
// signal, matching a device heard on more than one protocol.
func (s *Scheduler) process(readings []model.Reading, now time.Time) *model.CycleSummary {
	evicted := s.ledger.EvictExpired(now)
	if evicted > 0 {
		s.logger.Debug("evicted absent devices", "count", evicted)
	}

	strongest := make(map[string]int, len(readings))
	for _, r := range readings {
		if rssi, seen := strongest[r.Addr]; !seen || r.RSSI > rssi {
			strongest[r.Addr] = r.RSSI
		}
	}

	summary := &model.CycleSummary{
		Timestamp: now,
		RunID:     s.opts.RunID,
	}
	for addr, rssi := range strongest {
		token := s.epoch.Token(addr)
		obs := s.ledger.Observe(token, rssi, now)
		if !obs.Observed {
			continue
		}
		switch {
		case obs.Classification.Counts():
			summary.TransientCount++
			summary.TokensTransient = append(summary.TokensTransient, token)
		case obs.Classification == model.ClassStationary:
			summary.StationaryCount++
		}
		if obs.NewlyStationary {
			s.logger.Info("device marked stationary",
				"token", token[:8], "dwell_secs", obs.Dwell.Seconds())
			if err := s.publisher.Publish(context.Background(), events.TopicDeviceStationary, events.DeviceStationary{
				Token:     token[:8],
				FirstSeen: obs.FirstSeen,
				DwellSecs: obs.Dwell.Seconds(),
			}); err != nil {
				s.logger.Warn("publishing stationary event", "err", err)
			}
		}
	}

	summary.Logged = s.opts.Gate.ShouldLog(summary)
	return summary
}

// persist hands the record to every sink, isolating failures: a sink
// that rejects a write costs that sink that record, nothing more.
func (s *Scheduler) persist(ctx context.Context, summary *model.CycleSummary) {
	rec := summary.Record()
	for _, dst := range s.sinks {
		if err := dst.Persist(ctx, rec); err != nil {
			s.logger.Warn("persisting cycle record", "err", err)
		}
	}
	if err := s.publisher.Publish(ctx, events.TopicCycleLogged, events.CycleLogged{Record: rec}); err != nil {
		s.logger.Warn("publishing cycle event", "err", err)
	}
}

func (s *Scheduler) logCycle(summary *model.CycleSummary) {
	if summary.TransientCount > 0 {
		s.logger.Info("cycle complete",
			"cycle", summary.Cycle,
			"transient", summary.TransientCount,
			"stationary", summary.StationaryCount,
			"logged", summary.Logged)
	} else {
		s.logger.Debug("cycle complete",
			"cycle", summary.Cycle,
			"stationary", summary.StationaryCount,
			"logged", summary.Logged)
	}
}

// Status is a point-in-time view of the loop for the status API.
type Status struct {
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	UptimeSecs   float64             `json:"uptime_secs"`
	CyclesRun    int64               `json:"cycles_run"`
	CyclesLogged int64               `json:"cycles_logged"`
	EpochAgeSecs float64             `json:"epoch_age_secs"`
	Devices      int                 `json:"devices"`
	LastCycle    *model.CycleSummary `json:"last_cycle,omitempty"`
}

// Status returns the current loop status.
func (s *Scheduler) Status() Status {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		RunID:        s.opts.RunID,
		StartedAt:    s.startedAt,
		UptimeSecs:   now.Sub(s.startedAt).Seconds(),
		CyclesRun:    s.cyclesRun,
		CyclesLogged: s.cyclesLogged,
		EpochAgeSecs: s.epoch.Age(now).Seconds(),
		Devices:      s.ledger.Len(),
		LastCycle:    s.lastSummary,
	}
}

// Roster returns a snapshot of the live device ledger.
func (s *Scheduler) Roster() []ledger.Entry {
	return s.ledger.Snapshot(s.clock())
}
