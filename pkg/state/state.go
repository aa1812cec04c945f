package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Phase is the supervisor's position in the boot sequence
type Phase string

const (
	Booting      Phase = "BOOTING"
	CheckWifi    Phase = "CHECK_WIFI"
	RunningDev   Phase = "RUNNING_DEV"
	Provisioning Phase = "PROVISIONING"
	Running      Phase = "RUNNING"
)

// Phases lists every phase in boot order
var Phases = []Phase{Booting, CheckWifi, RunningDev, Provisioning, Running}

// Terminal reports whether the supervisor process exits after reaching p
func (p Phase) Terminal() bool {
	return p == Running || p == RunningDev
}

// Record is the status written for external inspection. It is overwritten
// as a whole on every transition and never read back by the supervisor.
type Record struct {
	BootID       string `json:"boot_id,omitempty"`
	LastBootTS   int64  `json:"last_boot_ts"`
	LastState    Phase  `json:"last_state"`
	SystemBootTS int64  `json:"system_boot_ts,omitempty"` // kernel boot time, 0 when unknown
}

// NewRecord starts the record for one supervisor run
func NewRecord(now time.Time) Record {
	r := Record{
		LastBootTS:   now.Unix(),
		LastState:    Booting,
		SystemBootTS: systemBootTime(),
	}
	if id, err := uuid.NewV4(); err == nil {
		r.BootID = id.String()
	}
	return r
}

func systemBootTime() int64 {
	bt, err := host.BootTime()
	if err != nil {
		return 0
	}
	return int64(bt)
}

// Recorder persists the latest Record
type Recorder interface {
	Save(r Record) error
}

// FileRecorder writes the record as indented JSON at a fixed path
type FileRecorder struct {
	path string
}

func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

func (f *FileRecorder) Path() string { return f.path }

// Save replaces the file contents wholesale. The write goes through a temp
// file in the same directory so readers never see a partial record.
func (f *FileRecorder) Save(r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// Read loads a previously written record, used by the status command
func Read(path string) (Record, error) {
	var r Record
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to parse state: %w", err)
	}
	return r, nil
}
