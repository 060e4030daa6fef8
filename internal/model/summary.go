package model

import (
	"time"
)

// Classification is the lifecycle stage of a tracked device.
type Classification string

const (
	// ClassNew marks a device on the cycle it is first observed.
	ClassNew Classification = "new"
	// ClassTransient marks a device re-observed before the stationary
	// threshold; the presumed-pedestrian class.
	ClassTransient Classification = "transient"
	// ClassStationary marks a device continuously present past the
	// stationary threshold (parked car, neighboring flat, the sensor's
	// own peripherals). Excluded from pedestrian counts.
	ClassStationary Classification = "stationary"
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	return string(c)
}

// Counts reports whether the classification contributes to the
// transient (pedestrian) tally. New devices count: a pedestrian caught
// by a single cycle is seen exactly once.
func (c Classification) Counts() bool {
	return c == ClassNew || c == ClassTransient
}

// Reading is one raw sighting returned by the scan primitive:
// an un-anonymized radio address and its signal strength in dBm.
// Readings never outlive the cycle that produced them.
type Reading struct {
	Addr string
	RSSI int
}

// CycleSummary is the pipeline's sole per-cycle output. Built fresh
// each cycle, immutable once built, handed to the gate and sinks and
// then dropped.
type CycleSummary struct {
	Timestamp       time.Time `json:"timestamp"`
	RunID           string    `json:"run_id"`
	Cycle           int64     `json:"cycle"`
	TransientCount  int       `json:"transient_count"`
	StationaryCount int       `json:"stationary_count"`
	TokensTransient []string  `json:"tokens_transient"`
	Logged          bool      `json:"logged"`
}

// Record returns the persisted form of the summary. The Logged flag is
// a gate outcome, not data; it is not written.
func (s *CycleSummary) Record() *CycleRecord {
	return &CycleRecord{
		Timestamp:       s.Timestamp,
		RunID:           s.RunID,
		Cycle:           s.Cycle,
		TransientCount:  s.TransientCount,
		StationaryCount: s.StationaryCount,
		TokensTransient: s.TokensTransient,
	}
}

// CycleRecord is the self-contained unit handed to sinks, serialized
// as one JSON line in the day files.
type CycleRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	RunID           string    `json:"run_id"`
	Cycle           int64     `json:"cycle"`
	TransientCount  int       `json:"transient_count"`
	StationaryCount int       `json:"stationary_count"`
	TokensTransient []string  `json:"tokens_transient"`
}

// DayFileName returns the raw day file a record written at t belongs to.
func DayFileName(t time.Time) string {
	return "scan_" + t.Format("20060102") + ".jsonl"
}
