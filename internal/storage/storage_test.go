package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDataDir_LocalFallback(t *testing.T) {
	local := t.TempDir()
	m := NewManager(local, nil, discardLogger())

	dir, err := m.DataDir("raw")
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if dir != filepath.Join(local, "raw") {
		t.Errorf("dir = %q, want under local root", dir)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestDataDir_EmptyMountRootIgnored(t *testing.T) {
	// A probe root full of plain directories (not mount points) must
	// not be mistaken for removable media.
	local := t.TempDir()
	fakeRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(fakeRoot, "usb0"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := NewManager(local, []string{fakeRoot}, discardLogger())
	dir, err := m.DataDir("raw")
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if dir != filepath.Join(local, "raw") {
		t.Errorf("dir = %q, want local fallback (subdirs of a temp dir are not mounts)", dir)
	}
}

func TestRemovable_NoneFound(t *testing.T) {
	m := NewManager(t.TempDir(), []string{t.TempDir()}, discardLogger())
	if mount, ok := m.Removable(); ok {
		t.Errorf("unexpected removable drive %q", mount)
	}
}

func TestWriteReadme_NoDriveIsNoop(t *testing.T) {
	m := NewManager(t.TempDir(), nil, discardLogger())
	// Must not panic or create anything.
	m.WriteReadme()
}

func TestIsWritable(t *testing.T) {
	if !isWritable(t.TempDir()) {
		t.Error("temp dir reported unwritable")
	}
	if isWritable(filepath.Join(t.TempDir(), "missing")) {
		t.Error("missing dir reported writable")
	}
}
