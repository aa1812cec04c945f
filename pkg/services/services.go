package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Systemd starts and stops units through systemctl. Both operations are
// idempotent on the systemd side: starting a running unit is a no-op.
type Systemd struct {
	run Runner
}

func NewSystemd() *Systemd {
	return &Systemd{run: execRunner}
}

// NewSystemdWithRunner swaps the command runner, used by tests
func NewSystemdWithRunner(run Runner) *Systemd {
	return &Systemd{run: run}
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.systemctl(ctx, "start", name)
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.systemctl(ctx, "stop", name)
}

func (s *Systemd) systemctl(ctx context.Context, action, name string) error {
	if name == "" {
		return fmt.Errorf("systemctl %s: empty unit name", action)
	}
	if output, err := s.run(ctx, "systemctl", action, name); err != nil {
		return fmt.Errorf("systemctl %s %s: %w (output: %s)", action, name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
