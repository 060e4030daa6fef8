package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/groblegark/footfall/internal/model"
)

// DirResolver returns the directory day files should currently go to.
// It is consulted at startup and again at every day rollover, so the
// storage layer can re-probe removable media between days.
type DirResolver func() (string, error)

// JSONLSink appends one JSON line per record to a per-day file
// (scan_YYYYMMDD.jsonl), the format the aggregation step and the
// original collection scripts consume.
type JSONLSink struct {
	resolve DirResolver
	logger  *slog.Logger

	file    *os.File
	dayName string
}

// NewJSONLSink creates a day-file sink. The resolver is called lazily
// on the first record.
func NewJSONLSink(resolve DirResolver, logger *slog.Logger) *JSONLSink {
	return &JSONLSink{resolve: resolve, logger: logger}
}

// FixedDir returns a DirResolver that always yields dir.
func FixedDir(dir string) DirResolver {
	return func() (string, error) { return dir, nil }
}

// Persist appends rec to the day file for rec.Timestamp, rolling over
// to a new file (and re-resolving the directory) at day boundaries.
func (s *JSONLSink) Persist(ctx context.Context, rec *model.CycleRecord) error {
	name := model.DayFileName(rec.Timestamp)
	if s.file == nil || name != s.dayName {
		if err := s.rollover(name); err != nil {
			return err
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("appending to %s: %w", s.file.Name(), err)
	}
	return nil
}

func (s *JSONLSink) rollover(name string) error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.Warn("closing finished day file", "file", s.dayName, "err", err)
		}
		s.file = nil
	}

	dir, err := s.resolve()
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening day file %s: %w", path, err)
	}

	s.file = f
	s.dayName = name
	s.logger.Info("day file opened", "path", path)
	return nil
}

// Close closes the current day file, if any.
func (s *JSONLSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
