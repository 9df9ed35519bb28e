package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gcodeview/pkg/errors"
)

func TestOpenSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.gcode")
	want := []byte("G28\nG1 X10 E1\n")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.Mapped() {
		t.Error("small files should be read, not mapped")
	}
	if !bytes.Equal(f.Bytes(), want) || f.Size() != len(want) || f.Path() != path {
		t.Errorf("unexpected content %q", f.Bytes())
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if f.Bytes() != nil {
		t.Error("content should be dropped after Close")
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestOpenLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.gcode")
	want := bytes.Repeat([]byte("G1 X1 Y2 E0.1\n"), MapThreshold/14+1)
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if runtime.GOOS == "linux" && !f.Mapped() {
		t.Error("expected the file to be mapped")
	}
	if !bytes.Equal(f.Bytes(), want) {
		t.Error("mapped content differs from the file")
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "missing.gcode")); !errors.Is(err, errors.ErrLoader) {
		t.Errorf("expected LOADER error, got %v", err)
	}
	if _, err := Open(dir); !errors.Is(err, errors.ErrLoader) {
		t.Errorf("expected LOADER error for a directory, got %v", err)
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.gcode")); !errors.Is(err, errors.ErrLoader) {
		t.Errorf("expected LOADER error, got %v", err)
	}
}
