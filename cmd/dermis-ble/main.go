package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dermis-firmware/pkg/config"
	"dermis-firmware/pkg/globals"
	"dermis-firmware/pkg/logger"
	"dermis-firmware/pkg/provisioning"
	"dermis-firmware/pkg/wifi"
)

type options struct {
	configPath string
	name       string
}

// serveFunc runs the GATT server until ctx is cancelled
type serveFunc func(ctx context.Context, name string, log *zap.Logger) error

func main() {
	if err := newRootCmd(serveBLE).Execute(); err != nil {
		os.Exit(1)
	}
}

func serveBLE(ctx context.Context, name string, log *zap.Logger) error {
	return provisioning.NewServer(name, wifi.New(), log).Run(ctx)
}

func newRootCmd(serve serveFunc) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "dermis-ble",
		Short:        "BLE provisioning service: receives Wi-Fi credentials from the companion app",
		Version:      globals.FirmwareVersion,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := config.Load(opts.configPath)
			cfg.Log.File = "" // journald only, the supervisor owns the log file

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer zap.RedirectStdLog(log)()

			log.Info("provisioning service started", zap.String("name", opts.name))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, opts.name, log); err != nil {
				log.Error("provisioning service failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	root.Flags().StringVar(&opts.configPath, "config", globals.ConfigPath, "path to config.json")
	root.Flags().StringVar(&opts.name, "name", globals.DeviceName, "advertised BLE name")
	return root
}
