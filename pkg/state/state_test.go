package state

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorder_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	rec := NewFileRecorder(path)

	r := Record{BootID: "b1", LastBootTS: 1700000000, LastState: Booting}
	if err := rec.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	r.LastState = CheckWifi
	if err := rec.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != r {
		t.Errorf("Read = %+v, want %+v", got, r)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only state.json in dir, found %d entries", len(entries))
	}
}

func TestFileRecorder_SaveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	rec := NewFileRecorder(path)
	r := Record{LastBootTS: 42, LastState: Running}

	if err := rec.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, _ := os.ReadFile(path)
	if err := rec.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, _ := os.ReadFile(path)

	if !bytes.Equal(first, second) {
		t.Errorf("second save changed content:\n%s\n%s", first, second)
	}
}

func TestFileRecorder_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// parent is a regular file, so the directory cannot be created
	rec := NewFileRecorder(filepath.Join(blocker, "state.json"))
	if err := rec.Save(Record{LastState: Booting}); err == nil {
		t.Fatal("expected error writing under a regular file")
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Unix(1700000123, 0)
	r := NewRecord(now)
	if r.LastBootTS != 1700000123 {
		t.Errorf("LastBootTS = %d", r.LastBootTS)
	}
	if r.LastState != Booting {
		t.Errorf("LastState = %s, want BOOTING", r.LastState)
	}
	if len(r.BootID) != 36 {
		t.Errorf("BootID = %q, want a UUID", r.BootID)
	}
	if other := NewRecord(now); other.BootID == r.BootID {
		t.Error("boot ids should differ between runs")
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range Phases {
		want := p == Running || p == RunningDev
		if p.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", p, p.Terminal())
		}
	}
}

func TestFileRecorder_PathMatchesReadTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	rec := NewFileRecorder(path)
	if rec.Path() != path {
		t.Fatalf("Path() = %q, want %q", rec.Path(), path)
	}
	if err := rec.Save(Record{LastBootTS: 1, LastState: Running}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(rec.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.LastState != Running || !got.LastState.Terminal() {
		t.Errorf("LastState = %q, want terminal RUNNING", got.LastState)
	}
}
