// Package supervisor decides at boot whether the device runs its mirror
// service or falls back to BLE provisioning, and drives the services and
// status LED accordingly.
//
// The flow is strictly sequential:
//
//	BOOTING -> RUNNING_DEV                       (device_mode=dev)
//	BOOTING -> CHECK_WIFI -> RUNNING             (profile configured, network reachable)
//	BOOTING -> CHECK_WIFI -> PROVISIONING -> RUNNING
//
// PROVISIONING never gives up. Once the advertise timeout has passed the LED
// shows the error pattern but probing continues until the network comes up.
package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dermis-firmware/pkg/config"
	"dermis-firmware/pkg/indicator"
	"dermis-firmware/pkg/metrics"
	"dermis-firmware/pkg/state"
)

const (
	connectPollInterval      = 2 * time.Second
	provisioningPollInterval = 3 * time.Second
)

// Probe answers the two questions that make up "connectivity established"
type Probe interface {
	IsConfigured(ctx context.Context) bool
	IsReachable(ctx context.Context, host string, timeout time.Duration) bool
}

type ServiceController interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// Env carries everything the supervisor touches, built once in main
type Env struct {
	Config    config.Config
	Log       *zap.Logger
	Recorder  state.Recorder
	Probe     Probe
	Services  ServiceController
	Indicator indicator.Indicator
	Clock     Clock             // defaults to wall clock
	Metrics   *metrics.Recorder // nil disables metrics
}

type Supervisor struct {
	env Env
	log *zap.Logger
	rec state.Record
}

func New(env Env) *Supervisor {
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	if env.Clock == nil {
		env.Clock = realClock{}
	}
	return &Supervisor{env: env, log: env.Log}
}

// Record returns the last state written by the supervisor
func (s *Supervisor) Record() state.Record { return s.rec }

// Run performs one boot attempt and returns the phase it ended in. It only
// returns an error when ctx is cancelled while waiting; in that case the
// phase is wherever the supervisor was at the time.
func (s *Supervisor) Run(ctx context.Context) (state.Phase, error) {
	cfg := s.env.Config

	s.rec = state.NewRecord(s.env.Clock.Now())
	s.log = s.env.Log.With(zap.String("boot_id", s.rec.BootID))
	s.log.Info("supervisor boot start", zap.String("device_mode", string(cfg.DeviceMode)))

	s.transition(state.Booting)
	s.setIndicator(ctx, indicator.Boot)

	if cfg.DeviceMode == config.ModeDev {
		s.log.Info("dev mode active, starting provisioning and mirror immediately")
		s.startService(ctx, cfg.ProvisioningService)
		s.startService(ctx, cfg.MirrorService)
		s.setIndicator(ctx, indicator.Online)
		s.transition(state.RunningDev)
		return state.RunningDev, nil
	}

	s.log.Info("prod mode, checking wifi")
	s.transition(state.CheckWifi)

	ok := s.configured(ctx)
	if ok {
		var err error
		if ok, err = s.connectWithRetry(ctx); err != nil {
			return state.CheckWifi, err
		}
	}

	if ok {
		s.log.Info("wifi up, starting mirror service")
		s.startService(ctx, cfg.MirrorService)
		s.setIndicator(ctx, indicator.Online)
		s.transition(state.Running)
		return state.Running, nil
	}

	s.log.Warn("wifi missing or unreachable, entering provisioning mode")
	s.transition(state.Provisioning)
	s.setIndicator(ctx, indicator.Setup)
	s.startService(ctx, cfg.ProvisioningService)

	return s.provision(ctx)
}

// connectWithRetry polls reachability until it succeeds or the connect
// timeout passes. Each poll waits first: a freshly configured profile
// rarely associates instantly.
func (s *Supervisor) connectWithRetry(ctx context.Context) (bool, error) {
	cfg := s.env.Config
	s.log.Info("waiting for wifi connection", zap.Duration("timeout", cfg.WifiConnectTimeout))

	deadline := s.env.Clock.Now().Add(cfg.WifiConnectTimeout)
	for s.env.Clock.Now().Before(deadline) {
		if err := s.env.Clock.Sleep(ctx, connectPollInterval); err != nil {
			return false, err
		}
		if s.reachable(ctx) {
			s.log.Info("wifi connection established")
			return true, nil
		}
	}

	s.log.Warn("wifi connection failed within timeout")
	return false, nil
}

// provision loops until the network comes up. There is no iteration limit.
func (s *Supervisor) provision(ctx context.Context) (state.Phase, error) {
	cfg := s.env.Config
	start := s.env.Clock.Now()
	timedOut := false

	for {
		if s.configured(ctx) && s.reachable(ctx) {
			s.log.Info("provisioning successful, switching to mirror service",
				zap.Duration("elapsed", s.env.Clock.Now().Sub(start)))
			s.stopService(ctx, cfg.ProvisioningService)
			s.startService(ctx, cfg.MirrorService)
			s.setIndicator(ctx, indicator.Online)
			s.env.Metrics.SetProvisioningElapsed(s.env.Clock.Now().Sub(start))
			s.transition(state.Running)
			return state.Running, nil
		}

		elapsed := s.env.Clock.Now().Sub(start)
		if elapsed > cfg.BLEAdvertiseTimeout {
			if !timedOut {
				timedOut = true
				s.log.Error("provisioning timeout exceeded, showing error but still waiting",
					zap.Duration("timeout", cfg.BLEAdvertiseTimeout))
				s.env.Metrics.SetProvisioningElapsed(elapsed)
				s.flushMetrics()
			}
			// every iteration, not just the first one past the timeout
			s.setIndicator(ctx, indicator.Error)
		}

		if err := s.env.Clock.Sleep(ctx, provisioningPollInterval); err != nil {
			s.env.Metrics.SetProvisioningElapsed(s.env.Clock.Now().Sub(start))
			s.flushMetrics()
			return state.Provisioning, err
		}
	}
}

func (s *Supervisor) configured(ctx context.Context) bool {
	ok := s.env.Probe.IsConfigured(ctx)
	s.env.Metrics.ObserveProbe("configured", ok)
	s.log.Debug("wifi configured?", zap.Bool("configured", ok))
	return ok
}

func (s *Supervisor) reachable(ctx context.Context) bool {
	cfg := s.env.Config
	ok := s.env.Probe.IsReachable(ctx, cfg.WifiCheckHost, cfg.WifiCheckTimeout)
	s.env.Metrics.ObserveProbe("reachable", ok)
	s.log.Debug("ping", zap.String("host", cfg.WifiCheckHost), zap.Bool("ok", ok))
	return ok
}

// transition records the new phase. Persistence failures are logged only.
func (s *Supervisor) transition(p state.Phase) {
	s.rec.LastState = p
	if err := s.env.Recorder.Save(s.rec); err != nil {
		s.log.Error("failed to write state", zap.String("last_state", string(p)), zap.Error(err))
	} else {
		s.log.Info("state updated", zap.String("last_state", string(p)))
	}
	s.env.Metrics.SetPhase(p)
	s.flushMetrics()
}

// Service and LED requests are fire-and-forget: failures are logged and
// the boot sequence carries on.

func (s *Supervisor) startService(ctx context.Context, name string) {
	s.log.Info("starting service", zap.String("service", name))
	err := s.env.Services.Start(ctx, name)
	s.env.Metrics.ObserveService("start", name, err)
	if err != nil {
		s.log.Error("failed to start service", zap.String("service", name), zap.Error(err))
	}
}

func (s *Supervisor) stopService(ctx context.Context, name string) {
	s.log.Info("stopping service", zap.String("service", name))
	err := s.env.Services.Stop(ctx, name)
	s.env.Metrics.ObserveService("stop", name, err)
	if err != nil {
		s.log.Error("failed to stop service", zap.String("service", name), zap.Error(err))
	}
}

func (s *Supervisor) setIndicator(ctx context.Context, p indicator.Pattern) {
	s.log.Debug("setting led pattern", zap.String("pattern", string(p)))
	if err := s.env.Indicator.Set(ctx, p); err != nil {
		s.log.Warn("failed to set led pattern", zap.String("pattern", string(p)), zap.Error(err))
	}
}

func (s *Supervisor) flushMetrics() {
	if err := s.env.Metrics.Flush(); err != nil {
		s.log.Warn("failed to export metrics", zap.Error(err))
	}
}
