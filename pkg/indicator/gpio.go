package indicator

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"dermis-firmware/pkg/config"
)

type outPin interface {
	Out(l gpio.Level) error
}

// RGB levels per pattern. Levels are static so the LED keeps showing the
// last pattern after the supervisor process has exited.
var levels = map[Pattern][3]gpio.Level{
	//             red        green      blue
	Boot:   {gpio.Low, gpio.Low, gpio.High},
	Online: {gpio.Low, gpio.High, gpio.Low},
	Setup:  {gpio.Low, gpio.High, gpio.High},
	Error:  {gpio.High, gpio.Low, gpio.Low},
}

// GPIO drives a common-cathode RGB LED wired to three header pins
type GPIO struct {
	pins [3]outPin
}

func NewGPIO(cfg config.PinConfig) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO host: %w", err)
	}

	var pins [3]outPin
	for i, name := range []string{cfg.Red, cfg.Green, cfg.Blue} {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio pin %q not found", name)
		}
		pins[i] = p
	}
	return &GPIO{pins: pins}, nil
}

func (g *GPIO) Set(ctx context.Context, p Pattern) error {
	lv, ok := levels[p]
	if !ok {
		return fmt.Errorf("unknown indicator pattern %q", p)
	}
	for i, pin := range g.pins {
		if err := pin.Out(lv[i]); err != nil {
			return fmt.Errorf("failed to drive pin %d for %s: %w", i, p, err)
		}
	}
	return nil
}
