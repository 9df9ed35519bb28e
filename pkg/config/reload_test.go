package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func touch(t *testing.T, path, data string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestReloadManagerDetectChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.cfg")
	touch(t, path, "[machine]\ncnc: no\n[viewer]\nbatch_size: 10\n", time.Now())

	rm, err := NewReloadManager(path)
	if err != nil {
		t.Fatalf("NewReloadManager failed: %v", err)
	}

	next, _ := LoadString("[machine]\ncnc: yes\n[slicer]\nkind: cura\n")
	got := rm.DetectChanges(next)
	want := []string{"machine", "slicer", "viewer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	same, _ := LoadString("[viewer]\nbatch_size: 10\n[machine]\ncnc: no\n")
	if got := rm.DetectChanges(same); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}
}

func TestReloadManagerCheckFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.cfg")
	base := time.Now().Add(-time.Hour)
	touch(t, path, "[machine]\ncnc: no\n", base)

	rm, err := NewReloadManager(path)
	if err != nil {
		t.Fatalf("NewReloadManager failed: %v", err)
	}
	rm.SetDebounceTime(0)

	var calls int
	var seen []string
	rm.OnReload(func(mc *MachineConfig, changed []string) {
		calls++
		seen = changed
	})

	if changed, err := rm.CheckFile(); err != nil || changed != nil {
		t.Fatalf("unchanged file should not reload: %v %v", changed, err)
	}

	touch(t, path, "[machine]\ncnc: yes\n", base.Add(time.Minute))
	changed, err := rm.CheckFile()
	if err != nil {
		t.Fatalf("CheckFile failed: %v", err)
	}
	if !reflect.DeepEqual(changed, []string{"machine"}) || calls != 1 || !reflect.DeepEqual(seen, changed) {
		t.Errorf("unexpected reload %v (calls %d)", changed, calls)
	}
	if !rm.Current().CNC {
		t.Error("current profile should be the reloaded one")
	}
}

func TestReloadManagerKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.cfg")
	base := time.Now().Add(-time.Hour)
	touch(t, path, "[machine]\nbelt: yes\n", base)

	rm, err := NewReloadManager(path)
	if err != nil {
		t.Fatalf("NewReloadManager failed: %v", err)
	}
	rm.SetDebounceTime(0)

	touch(t, path, "[machine]\nbelt: maybe\n", base.Add(time.Minute))
	if _, err := rm.CheckFile(); err == nil {
		t.Fatal("expected error for invalid profile")
	}
	if !rm.Current().Belt {
		t.Error("previous profile should stay active")
	}

	if _, err := NewReloadManager(filepath.Join(dir, "missing.cfg")); err == nil {
		t.Error("expected error for missing file")
	}
}
