package wifi

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	outputs map[string]string // keyed by "name arg0 arg1..."
	fail    map[string]bool   // keyed by name+" "+first arg
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name, args})
	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	if f.fail[key] {
		return nil, errors.New("exit status 1")
	}
	return []byte(f.outputs[name+" "+strings.Join(args, " ")]), nil
}

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   bool
	}{
		{"wireless profile", "Wired connection 1:802-11-ethernet\nHome\\:5G:802-11-wireless\n", true},
		{"short type alias", "Home:wifi\n", true},
		{"only ethernet", "Wired connection 1:802-3-ethernet\nlo:loopback\n", false},
		{"name contains wifi", "wifi:802-3-ethernet\n", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fr := &fakeRunner{outputs: map[string]string{
				"nmcli -t -f NAME,TYPE connection show": tc.output,
			}}
			if got := NewWithRunner(fr.run).IsConfigured(context.Background()); got != tc.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsConfigured_CommandFails(t *testing.T) {
	fr := &fakeRunner{fail: map[string]bool{"nmcli -t": true}}
	if NewWithRunner(fr.run).IsConfigured(context.Background()) {
		t.Error("expected false when nmcli fails")
	}
}

func TestIsReachable(t *testing.T) {
	fr := &fakeRunner{}
	w := NewWithRunner(fr.run)

	if !w.IsReachable(context.Background(), "8.8.8.8", 2500*time.Millisecond) {
		t.Fatal("expected reachable")
	}
	want := call{"ping", []string{"-c", "1", "-W", "3", "8.8.8.8"}}
	if !reflect.DeepEqual(fr.calls[0], want) {
		t.Errorf("call = %+v, want %+v", fr.calls[0], want)
	}

	fr.fail = map[string]bool{"ping -c": true}
	if w.IsReachable(context.Background(), "8.8.8.8", time.Second) {
		t.Error("expected unreachable when ping fails")
	}
}

func TestIsReachable_MinimumWait(t *testing.T) {
	fr := &fakeRunner{}
	NewWithRunner(fr.run).IsReachable(context.Background(), "host", 0)
	if got := fr.calls[0].args[3]; got != "1" {
		t.Errorf("-W = %s, want 1", got)
	}
}

func TestParseNetworks(t *testing.T) {
	output := strings.Join([]string{
		"HomeWiFi:70:WPA2",
		"Guest:40:",
		"HomeWiFi:85:WPA2",
		":90:WPA2",
		"Cafe\\:Free:55:--",
		"garbage",
	}, "\n")

	got := parseNetworks(output)
	want := []Network{
		{SSID: "HomeWiFi", Signal: 85, Secured: true},
		{SSID: "Cafe:Free", Signal: 55, Secured: false},
		{SSID: "Guest", Signal: 40, Secured: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseNetworks() = %+v, want %+v", got, want)
	}
}

func TestSetCredentials(t *testing.T) {
	fr := &fakeRunner{}
	w := NewWithRunner(fr.run)

	if err := w.SetCredentials(context.Background(), "Home", "hunter2hunter2"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if len(fr.calls) != 3 {
		t.Fatalf("expected delete, add and up calls, got %d", len(fr.calls))
	}
	add := strings.Join(fr.calls[1].args, " ")
	if !strings.Contains(add, "ssid Home") || !strings.Contains(add, "wifi-sec.psk hunter2hunter2") {
		t.Errorf("unexpected add args: %s", add)
	}
}

func TestSetCredentials_OpenNetwork(t *testing.T) {
	fr := &fakeRunner{}
	if err := NewWithRunner(fr.run).SetCredentials(context.Background(), "Guest", ""); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if add := strings.Join(fr.calls[1].args, " "); strings.Contains(add, "wifi-sec") {
		t.Errorf("open network should not set security: %s", add)
	}
}

func TestSetCredentials_Invalid(t *testing.T) {
	w := NewWithRunner((&fakeRunner{}).run)
	if err := w.SetCredentials(context.Background(), "", "password123"); err == nil {
		t.Error("expected error for empty ssid")
	}
	if err := w.SetCredentials(context.Background(), "Home", "short"); err == nil {
		t.Error("expected error for short passphrase")
	}
}

func TestSetCredentials_AddFails(t *testing.T) {
	fr := &fakeRunner{fail: map[string]bool{"nmcli connection": true}}
	if err := NewWithRunner(fr.run).SetCredentials(context.Background(), "Home", "password123"); err == nil {
		t.Error("expected error when nmcli fails")
	}
}
