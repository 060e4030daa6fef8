package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

// ExecScanner shells out to a helper command that owns the radio.
//
// The command is invoked as `<command> --duration <seconds>` and must
// print one sighting per line on stdout:
//
//	AA:BB:CC:DD:EE:FF -67
//
// Stderr is passed through for visibility in the daemon logs. Exiting
// with no output is the "no devices found" result and is not an error.
type ExecScanner struct {
	command  string
	duration time.Duration
	logger   *slog.Logger
}

// NewExecScanner creates a scanner around the given helper command.
func NewExecScanner(command string, duration time.Duration, logger *slog.Logger) *ExecScanner {
	return &ExecScanner{command: command, duration: duration, logger: logger}
}

// Scan runs one sweep. Context cancellation kills the helper; a
// deadline hit maps to ErrTimeout.
func (s *ExecScanner) Scan(ctx context.Context) ([]model.Reading, error) {
	secs := int(s.duration.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	cmd := exec.CommandContext(ctx, s.command, "--duration", strconv.Itoa(secs))
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = newLineLogger(s.logger)

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scan command %s: %w", s.command, err)
	}

	return s.parse(stdout.Bytes()), nil
}

func (s *ExecScanner) parse(out []byte) []model.Reading {
	var readings []model.Reading
	malformed := 0

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			malformed++
			continue
		}
		rssi, err := strconv.Atoi(fields[1])
		if err != nil {
			malformed++
			continue
		}
		readings = append(readings, model.Reading{Addr: fields[0], RSSI: rssi})
	}

	if malformed > 0 {
		s.logger.Warn("scan output contained malformed lines", "count", malformed)
	}
	return readings
}

// lineLogger forwards helper stderr lines to the daemon log.
type lineLogger struct {
	logger *slog.Logger
	buf    bytes.Buffer
}

func newLineLogger(logger *slog.Logger) *lineLogger {
	return &lineLogger{logger: logger}
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			w.buf.WriteString(line)
			break
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			w.logger.Debug("scan helper", "line", trimmed)
		}
	}
	return len(p), nil
}
