package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dermis-firmware/pkg/config"
	"dermis-firmware/pkg/globals"
	"dermis-firmware/pkg/indicator"
	"dermis-firmware/pkg/logger"
	"dermis-firmware/pkg/metrics"
	"dermis-firmware/pkg/services"
	"dermis-firmware/pkg/state"
	"dermis-firmware/pkg/supervisor"
	"dermis-firmware/pkg/wifi"
)

type options struct {
	configPath string
	statePath  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "dermis-supervisor",
		Short:        "Boot supervisor: start the mirror when online, BLE provisioning otherwise",
		Version:      globals.FirmwareVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", globals.ConfigPath, "path to config.json")
	root.PersistentFlags().StringVar(&opts.statePath, "state", globals.StatePath, "path to state.json")

	root.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newInstallCmd(opts),
		newWifiCmd(),
	)
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one boot attempt (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd.Context(), opts)
		},
	}
}

func runSupervisor(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, warnings := config.Load(opts.configPath)

	log, err := logger.New(cfg.Log)
	if err != nil {
		// keep booting with console output only
		fallback := cfg.Log
		fallback.File = ""
		log, _ = logger.New(fallback)
		log.Warn("file logging disabled", zap.Error(err))
	}
	defer log.Sync()
	defer zap.RedirectStdLog(log)()

	log.Info("=== Dermis Supervisor Boot Start ===", zap.String("version", globals.FirmwareVersion))
	for _, w := range warnings {
		log.Warn(w)
	}

	ind, err := indicator.New(cfg.Indicator)
	if err != nil {
		log.Warn("led indicator unavailable", zap.Error(err))
		ind = indicator.Nop{}
	}

	rec := state.NewFileRecorder(opts.statePath)
	log.Info("recording state", zap.String("path", rec.Path()))

	sup := supervisor.New(supervisor.Env{
		Config:    cfg,
		Log:       log,
		Recorder:  rec,
		Probe:     wifi.New(),
		Services:  services.NewSystemd(),
		Indicator: ind,
		Metrics:   metrics.New(cfg.MetricsTextfile),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	phase, err := sup.Run(ctx)
	if err != nil {
		log.Warn("supervisor interrupted", zap.String("last_state", string(phase)), zap.Error(err))
		return err
	}
	if !phase.Terminal() {
		return fmt.Errorf("supervisor stopped in %s", phase)
	}
	log.Info("supervisor finished", zap.String("last_state", string(phase)))
	return nil
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state recorded by the last boot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := state.Read(opts.statePath)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newInstallCmd(opts *options) *cobra.Command {
	var unitDir, binPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install and enable the supervisor systemd unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := services.NewSystemd().InstallUnit(cmd.Context(), services.UnitOptions{
				Dir:         unitDir,
				Name:        globals.SupervisorService,
				ExecStart:   fmt.Sprintf("%s run --config %s --state %s", binPath, opts.configPath, opts.statePath),
				Description: "Dermis boot supervisor",
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&unitDir, "unit-dir", globals.SystemdUnitDir, "systemd unit directory")
	cmd.Flags().StringVar(&binPath, "bin", globals.SupervisorBinPath, "supervisor binary path used in ExecStart")
	return cmd
}

func newWifiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wifi",
		Short: "Inspect networks and write credentials through NetworkManager",
	}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "List visible networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			networks, err := wifi.New().Scan(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(networks)
		},
	}

	var ssid, password string
	set := &cobra.Command{
		Use:   "set",
		Short: "Register a Wi-Fi profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wifi.New().SetCredentials(cmd.Context(), ssid, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials saved for %s\n", ssid)
			return nil
		},
	}
	set.Flags().StringVar(&ssid, "ssid", "", "network name")
	set.Flags().StringVar(&password, "password", "", "WPA passphrase, empty for open networks")
	_ = set.MarkFlagRequired("ssid")

	cmd.AddCommand(scan, set)
	return cmd
}
