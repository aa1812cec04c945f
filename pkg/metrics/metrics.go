package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dermis-firmware/pkg/state"
)

// Recorder collects supervisor progress and exports it through the
// node_exporter textfile collector. A nil *Recorder is valid and discards
// everything, so callers never need to check whether export is enabled.
type Recorder struct {
	path     string
	registry *prometheus.Registry

	phase          *prometheus.GaugeVec
	probes         *prometheus.CounterVec
	serviceReqs    *prometheus.CounterVec
	provisionedFor prometheus.Gauge
}

// New returns nil when path is empty
func New(path string) *Recorder {
	if path == "" {
		return nil
	}
	r := &Recorder{
		path:     path,
		registry: prometheus.NewRegistry(),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dermis_supervisor_phase",
			Help: "1 for the supervisor's current boot phase, 0 otherwise.",
		}, []string{"phase"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermis_supervisor_probe_total",
			Help: "Network probes by kind (configured, reachable) and result.",
		}, []string{"kind", "result"}),
		serviceReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermis_supervisor_service_requests_total",
			Help: "Service start/stop requests by outcome.",
		}, []string{"action", "service", "result"}),
		provisionedFor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dermis_supervisor_provisioning_seconds",
			Help: "Time spent in the provisioning loop so far.",
		}),
	}
	r.registry.MustRegister(r.phase, r.probes, r.serviceReqs, r.provisionedFor)
	return r
}

func (r *Recorder) SetPhase(p state.Phase) {
	if r == nil {
		return
	}
	for _, each := range state.Phases {
		v := 0.0
		if each == p {
			v = 1
		}
		r.phase.WithLabelValues(string(each)).Set(v)
	}
}

func (r *Recorder) ObserveProbe(kind string, ok bool) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(kind, result(ok)).Inc()
}

func (r *Recorder) ObserveService(action, service string, err error) {
	if r == nil {
		return
	}
	r.serviceReqs.WithLabelValues(action, service, result(err == nil)).Inc()
}

func (r *Recorder) SetProvisioningElapsed(d time.Duration) {
	if r == nil {
		return
	}
	r.provisionedFor.Set(d.Seconds())
}

// Flush writes the current values to the textfile
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
