package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"dermis-firmware/pkg/config"
)

// Pattern is the status shown on the device LED
type Pattern string

const (
	Boot   Pattern = "boot"
	Online Pattern = "online"
	Setup  Pattern = "setup"
	Error  Pattern = "error"
)

var Patterns = []Pattern{Boot, Online, Setup, Error}

func ParsePattern(s string) (Pattern, error) {
	for _, p := range Patterns {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown indicator pattern %q", s)
}

type Indicator interface {
	Set(ctx context.Context, p Pattern) error
}

// New picks the backend named in the config
func New(cfg config.IndicatorConfig) (Indicator, error) {
	switch cfg.Backend {
	case "", "script":
		return NewScript(cfg.Script), nil
	case "gpio":
		return NewGPIO(cfg.Pins)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown indicator backend %q", cfg.Backend)
	}
}

// Runner executes an external command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Script hands the pattern to an external LED helper, e.g. led_helper.sh boot
type Script struct {
	path string
	run  Runner
}

func NewScript(path string) *Script {
	return &Script{path: path, run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}}
}

func NewScriptWithRunner(path string, run Runner) *Script {
	return &Script{path: path, run: run}
}

func (s *Script) Set(ctx context.Context, p Pattern) error {
	if _, err := ParsePattern(string(p)); err != nil {
		return err
	}
	if output, err := s.run(ctx, s.path, string(p)); err != nil {
		return fmt.Errorf("led helper %s: %w (output: %s)", p, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Nop is used on boards without a status LED
type Nop struct{}

func (Nop) Set(ctx context.Context, p Pattern) error {
	_, err := ParsePattern(string(p))
	return err
}
