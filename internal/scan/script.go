package scan

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/groblegark/footfall/internal/model"
)

// ScriptScanner replays a fixed sequence of sweeps, one per Scan call.
// Once the script is exhausted every further sweep is empty. Used in
// tests and by `footfall run --replay`.
type ScriptScanner struct {
	mu     sync.Mutex
	sweeps [][]model.Reading
	next   int
}

// NewScriptScanner creates a scanner that replays sweeps in order.
func NewScriptScanner(sweeps ...[]model.Reading) *ScriptScanner {
	return &ScriptScanner{sweeps: sweeps}
}

// Scan returns the next scripted sweep.
func (s *ScriptScanner) Scan(ctx context.Context) ([]model.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.sweeps) {
		return nil, nil
	}
	sweep := s.sweeps[s.next]
	s.next++
	return sweep, nil
}

// Remaining returns how many scripted sweeps are left.
func (s *ScriptScanner) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sweeps) - s.next
}

// LoadScript reads a replay script: "ADDR RSSI" lines in the scan
// helper's output format, with blank lines separating sweeps. Lines
// starting with # are comments.
func LoadScript(path string) ([][]model.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay script: %w", err)
	}
	defer f.Close()

	var sweeps [][]model.Reading
	var current []model.Reading
	lineNo := 0

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			sweeps = append(sweeps, current)
			current = nil
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("replay script %s:%d: want \"ADDR RSSI\", got %q", path, lineNo, line)
		}
		rssi, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("replay script %s:%d: bad RSSI %q", path, lineNo, fields[1])
		}
		current = append(current, model.Reading{Addr: fields[0], RSSI: rssi})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading replay script: %w", err)
	}
	if current != nil {
		sweeps = append(sweeps, current)
	}
	return sweeps, nil
}
