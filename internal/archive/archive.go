// Package archive ships finished day files off the sensor.
//
// The Scheduler periodically walks the raw data directory and uploads
// day files to a Destination. The current day's file is still being
// appended to and is skipped; a finished file is re-uploaded only when
// it changed since the last successful upload, so a failed tick heals
// on the next one.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

// Destination is the interface for an archive target.
type Destination interface {
	// Upload stores data under the given file name.
	Upload(ctx context.Context, name string, data []byte) error
}

// Scheduler runs periodic archive passes over the raw data directory.
type Scheduler struct {
	dir      string
	dest     Destination
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	uploaded map[string]time.Time // file name -> mod time at last successful upload
}

// NewScheduler creates a scheduler that archives day files from dir to
// dest at the given interval.
func NewScheduler(dir string, dest Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dir:      dir,
		dest:     dest,
		interval: interval,
		logger:   logger,
		uploaded: make(map[string]time.Time),
	}
}

// Start begins periodic archiving. It runs an initial pass immediately,
// then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.archiveOnce(ctx, time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.archiveOnce(ctx, time.Now())
		}
	}
}

// archiveOnce uploads every finished day file that is new or changed.
func (s *Scheduler) archiveOnce(ctx context.Context, now time.Time) {
	names, err := s.pending(now)
	if err != nil {
		s.logger.Error("archive scan failed", "err", err)
		return
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := s.uploadFile(ctx, name); err != nil {
			s.logger.Error("archive upload failed", "file", name, "err", err)
			continue
		}
		s.logger.Info("day file archived", "file", name)
	}
}

// pending returns the finished day files needing upload, oldest first.
func (s *Scheduler) pending(now time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "scan_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", s.dir, err)
	}

	today := model.DayFileName(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, path := range matches {
		name := filepath.Base(path)
		if name == today {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if last, ok := s.uploaded[name]; ok && !fi.ModTime().After(last) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *Scheduler) uploadFile(ctx context.Context, name string) error {
	path := filepath.Join(s.dir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := s.dest.Upload(ctx, name, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.uploaded[name] = fi.ModTime()
	s.mu.Unlock()
	return nil
}
