package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type UnitOptions struct {
	Dir         string // systemd unit directory
	Name        string // unit file name, e.g. dermis-supervisor.service
	ExecStart   string // supervisor binary plus arguments
	Description string
}

func (o UnitOptions) render() string {
	return `[Unit]
Description=` + o.Description + `
Wants=NetworkManager.service
After=NetworkManager.service

[Service]
Type=simple
ExecStart=` + o.ExecStart + `
Restart=no

[Install]
WantedBy=multi-user.target
`
}

// InstallUnit writes the supervisor unit and enables it so it runs on every boot.
// The provisioning and mirror units are started on demand and are not enabled here.
func (s *Systemd) InstallUnit(ctx context.Context, opts UnitOptions) (string, error) {
	if opts.Name == "" || !strings.HasSuffix(opts.Name, ".service") {
		return "", fmt.Errorf("invalid unit name %q", opts.Name)
	}
	if opts.ExecStart == "" {
		return "", fmt.Errorf("missing ExecStart")
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create unit directory: %w", err)
	}

	path := filepath.Join(opts.Dir, opts.Name)
	if err := os.WriteFile(path, []byte(opts.render()), 0644); err != nil {
		return "", fmt.Errorf("failed to write systemd service: %w", err)
	}

	if output, err := s.run(ctx, "systemctl", "daemon-reload"); err != nil {
		return path, fmt.Errorf("failed to reload systemd: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	if output, err := s.run(ctx, "systemctl", "enable", opts.Name); err != nil {
		return path, fmt.Errorf("failed to enable %s: %w (output: %s)", opts.Name, err, strings.TrimSpace(string(output)))
	}

	return path, nil
}
