package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"dermis-firmware/pkg/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	want := state.Record{BootID: "abc", LastBootTS: 1700000000, LastState: state.Provisioning}
	if err := state.NewFileRecorder(path).Save(want); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "status", "--state", path)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var got state.Record
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if got != want {
		t.Errorf("status = %+v, want %+v", got, want)
	}
}

func TestStatusCommand_MissingFile(t *testing.T) {
	if _, err := execute(t, "status", "--state", filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing state file")
	}
}

func TestWifiSet_RequiresSSID(t *testing.T) {
	_, err := execute(t, "wifi", "set")
	if err == nil || !strings.Contains(err.Error(), "ssid") {
		t.Errorf("expected required flag error, got %v", err)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "status", "install", "wifi"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not registered", name)
		}
	}
	if f := root.PersistentFlags().Lookup("config"); f == nil || f.DefValue != "/opt/dermis/config.json" {
		t.Errorf("config flag default = %v", f)
	}
}
