package wifi

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NetworkManager connection types that count as a Wi-Fi profile
const (
	typeWireless      = "802-11-wireless"
	typeWirelessShort = "wifi"
)

type Network struct {
	SSID    string `json:"ssid"`
	Signal  int    `json:"signal"` // 0-100
	Secured bool   `json:"secured"`
}

// Runner executes an external command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// WiFi talks to NetworkManager through nmcli and probes reachability with ping
type WiFi struct {
	mu  sync.Mutex
	run Runner
}

func New() *WiFi {
	return &WiFi{run: execRunner}
}

// NewWithRunner swaps the command runner, used by tests
func NewWithRunner(run Runner) *WiFi {
	return &WiFi{run: run}
}

// IsConfigured reports whether NetworkManager has at least one Wi-Fi profile
func (w *WiFi) IsConfigured(ctx context.Context) bool {
	output, err := w.run(ctx, "nmcli", "-t", "-f", "NAME,TYPE", "connection", "show")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(output), "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if t := fields[len(fields)-1]; t == typeWireless || t == typeWirelessShort {
			return true
		}
	}
	return false
}

// IsReachable sends a single ping to host. Failure or timeout is false, never an error.
func (w *WiFi) IsReachable(ctx context.Context, host string, timeout time.Duration) bool {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	// ping enforces -W itself; the context only guards against a wedged binary
	ctx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second+time.Second)
	defer cancel()

	_, err := w.run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), host)
	return err == nil
}

// Scan lists visible networks, strongest first, one entry per SSID
func (w *WiFi) Scan(ctx context.Context) ([]Network, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	output, err := w.run(ctx, "nmcli", "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list", "--rescan", "yes")
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return parseNetworks(string(output)), nil
}

// SetCredentials registers a NetworkManager profile for ssid and asks it to
// connect. Association itself is left to NetworkManager; an existing profile
// with the same name is replaced.
// password should be empty string for unsecured networks
func (w *WiFi) SetCredentials(ctx context.Context, ssid, password string) error {
	if ssid == "" || len(ssid) > 32 {
		return fmt.Errorf("invalid ssid length %d", len(ssid))
	}
	if password != "" && (len(password) < 8 || len(password) > 63) {
		return fmt.Errorf("wpa passphrase must be 8-63 characters")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Ignore failure, the profile usually doesn't exist yet
	w.run(ctx, "nmcli", "connection", "delete", "id", ssid)

	args := []string{"connection", "add", "type", "wifi", "con-name", ssid, "ssid", ssid, "connection.autoconnect", "yes"}
	if password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", password)
	}
	if _, err := w.run(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	if _, err := w.run(ctx, "nmcli", "connection", "up", "id", ssid); err != nil {
		return fmt.Errorf("profile saved but activation failed: %w", err)
	}
	return nil
}

func parseNetworks(output string) []Network {
	best := map[string]Network{}

	for _, line := range strings.Split(output, "\n") {
		fields := splitTerse(strings.TrimSpace(line))
		if len(fields) < 3 || fields[0] == "" {
			continue // hidden network or garbage
		}

		network := Network{SSID: fields[0]}
		if signal, err := strconv.Atoi(fields[1]); err == nil {
			network.Signal = signal
		}
		security := strings.TrimSpace(fields[2])
		network.Secured = security != "" && security != "--"

		if prev, ok := best[network.SSID]; !ok || network.Signal > prev.Signal {
			best[network.SSID] = network
		}
	}

	networks := make([]Network, 0, len(best))
	for _, n := range best {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].Signal != networks[j].Signal {
			return networks[i].Signal > networks[j].Signal
		}
		return networks[i].SSID < networks[j].SSID
	})
	return networks
}

// splitTerse splits one line of nmcli -t output. Literal colons and
// backslashes inside values are escaped with a backslash.
func splitTerse(line string) []string {
	if line == "" {
		return nil
	}
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}
