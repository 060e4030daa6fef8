// Package storage decides where day files live.
//
// The sensor's durable medium is a removable drive that may disappear
// at any moment. The Manager probes the configured mount roots for a
// mounted, writable volume with enough free space and hands out data
// directories on it; when no drive qualifies it falls back to the
// local data directory. Callers re-resolve at day rollover, so a
// yanked drive degrades to local storage at the next boundary instead
// of crashing the loop.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// minFreeBytes is the space a removable drive must have to be used.
const minFreeBytes = 100 << 20 // 100 MB

// projectDir is the directory created on the removable drive.
const projectDir = "footfall"

// Manager resolves data directories, preferring removable media.
type Manager struct {
	localRoot  string
	mountRoots []string
	logger     *slog.Logger
}

// NewManager creates a manager. localRoot is the on-board fallback;
// mountRoots (e.g. /media, /mnt) are probed for removable drives and
// may be empty to force local storage.
func NewManager(localRoot string, mountRoots []string, logger *slog.Logger) *Manager {
	return &Manager{localRoot: localRoot, mountRoots: mountRoots, logger: logger}
}

// DataDir returns a writable directory for the given kind of data
// ("raw", "processed"), creating it if needed.
func (m *Manager) DataDir(kind string) (string, error) {
	if mount, ok := m.preferredMount(); ok {
		dir := filepath.Join(mount, projectDir, "data", kind)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir, nil
		} else {
			m.logger.Warn("removable drive rejected directory creation, falling back to local",
				"mount", mount, "err", err)
		}
	}

	dir := filepath.Join(m.localRoot, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating local data dir %s: %w", dir, err)
	}
	return dir, nil
}

// Removable reports whether a usable removable drive is currently
// present, and its mount point if so.
func (m *Manager) Removable() (string, bool) {
	return m.preferredMount()
}

// preferredMount returns the first mounted volume under the probe
// roots that is writable and has enough free space.
func (m *Manager) preferredMount() (string, bool) {
	for _, root := range m.mountRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			mount := filepath.Join(root, entry.Name())
			if !isMountPoint(mount) {
				continue
			}
			free, err := freeBytes(mount)
			if err != nil || free < minFreeBytes {
				continue
			}
			if !isWritable(mount) {
				continue
			}
			return mount, true
		}
	}
	return "", false
}

// isMountPoint reports whether path is a mount point: its device
// differs from its parent's.
func isMountPoint(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	parent, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	pst, ok := parent.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return st.Dev != pst.Dev
}

func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func isWritable(path string) bool {
	probe, err := os.CreateTemp(path, ".footfall-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

// WriteReadme drops a README.txt at the project root on the removable
// drive explaining what the data is and its privacy posture. A no-op
// when no drive is present; failures are logged, never fatal.
func (m *Manager) WriteReadme() {
	mount, ok := m.preferredMount()
	if !ok {
		return
	}
	dir := filepath.Join(mount, projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Warn("creating project dir on removable drive", "err", err)
		return
	}
	path := filepath.Join(dir, "README.txt")
	content := fmt.Sprintf(`PEDESTRIAN TRAFFIC MONITORING DATA

This drive holds anonymized pedestrian traffic data.

DATA STRUCTURE:
  data/raw/        raw scan cycle records (JSONL, one file per day)
  data/processed/  aggregated datasets (CSV)

PRIVACY NOTICE:
  - Device addresses are replaced by keyed one-way hashes before storage
  - The hash key rotates on a fixed schedule; tokens are not comparable
    across rotations
  - Stationary devices are excluded from pedestrian counts
  - No personally identifiable information is stored

Written by footfall on %s
`, time.Now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		m.logger.Warn("writing README to removable drive", "err", err)
		return
	}
	m.logger.Info("wrote README to removable drive", "path", path)
}
