package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dermis-firmware/pkg/globals"
)

// EnvPrefix is prepended to every key when reading environment overrides,
// e.g. DERMIS_DEVICE_MODE or DERMIS_INDICATOR_BACKEND.
const EnvPrefix = "DERMIS"

type DeviceMode string

const (
	ModeProd DeviceMode = "prod"
	ModeDev  DeviceMode = "dev"
)

const (
	defaultDeviceMode          = ModeProd
	defaultWifiCheckHost       = "8.8.8.8"
	defaultWifiCheckTimeout    = 3 * time.Second
	defaultWifiConnectTimeout  = 30 * time.Second
	defaultBLEAdvertiseTimeout = 900 * time.Second
)

// Config is loaded once per boot and never mutated afterwards
type Config struct {
	DeviceMode          DeviceMode
	WifiCheckHost       string
	WifiCheckTimeout    time.Duration
	WifiConnectTimeout  time.Duration
	BLEAdvertiseTimeout time.Duration

	ProvisioningService string
	MirrorService       string
	Indicator           IndicatorConfig
	MetricsTextfile     string // empty disables the textfile export
	Log                 LogConfig
}

type IndicatorConfig struct {
	Backend string // script, gpio or none
	Script  string
	Pins    PinConfig
}

// PinConfig names the GPIO lines of an RGB status LED (periph.io names, e.g. "GPIO17")
type PinConfig struct {
	Red   string
	Green string
	Blue  string
}

type LogConfig struct {
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Default returns the literal fallback configuration used when nothing is persisted
func Default() Config {
	return Config{
		DeviceMode:          defaultDeviceMode,
		WifiCheckHost:       defaultWifiCheckHost,
		WifiCheckTimeout:    defaultWifiCheckTimeout,
		WifiConnectTimeout:  defaultWifiConnectTimeout,
		BLEAdvertiseTimeout: defaultBLEAdvertiseTimeout,
		ProvisioningService: globals.ProvisioningService,
		MirrorService:       globals.MirrorService,
		Indicator: IndicatorConfig{
			Backend: "script",
			Script:  globals.LedHelperPath,
			Pins:    PinConfig{Red: "GPIO17", Green: "GPIO27", Blue: "GPIO22"},
		},
		Log: LogConfig{
			File:       globals.LogsPath,
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("device_mode", string(d.DeviceMode))
	v.SetDefault("wifi_check_host", d.WifiCheckHost)
	v.SetDefault("wifi_check_timeout_sec", d.WifiCheckTimeout.Seconds())
	v.SetDefault("wifi_connect_timeout_sec", d.WifiConnectTimeout.Seconds())
	v.SetDefault("ble_advertise_timeout_sec", d.BLEAdvertiseTimeout.Seconds())
	v.SetDefault("provisioning_service", d.ProvisioningService)
	v.SetDefault("mirror_service", d.MirrorService)
	v.SetDefault("indicator.backend", d.Indicator.Backend)
	v.SetDefault("indicator.script", d.Indicator.Script)
	v.SetDefault("indicator.pins.red", d.Indicator.Pins.Red)
	v.SetDefault("indicator.pins.green", d.Indicator.Pins.Green)
	v.SetDefault("indicator.pins.blue", d.Indicator.Pins.Blue)
	v.SetDefault("metrics_textfile", d.MetricsTextfile)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads the JSON config at path. It never fails: a missing, unreadable or
// malformed file yields defaults, and each substitution is reported in the
// returned warnings so the caller can log them once a logger exists.
func Load(path string) (Config, []string) {
	var warnings []string

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("config file %s missing, using defaults", path))
		} else {
			warnings = append(warnings, fmt.Sprintf("failed to read config %s, using defaults: %v", path, err))
		}
	}

	d := Default()
	cfg := Config{
		WifiCheckHost:       strings.TrimSpace(v.GetString("wifi_check_host")),
		ProvisioningService: strings.TrimSpace(v.GetString("provisioning_service")),
		MirrorService:       strings.TrimSpace(v.GetString("mirror_service")),
		Indicator: IndicatorConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("indicator.backend"))),
			Script:  v.GetString("indicator.script"),
			Pins: PinConfig{
				Red:   v.GetString("indicator.pins.red"),
				Green: v.GetString("indicator.pins.green"),
				Blue:  v.GetString("indicator.pins.blue"),
			},
		},
		MetricsTextfile: v.GetString("metrics_textfile"),
		Log: LogConfig{
			File:       v.GetString("log.file"),
			Level:      v.GetString("log.level"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	switch mode := DeviceMode(strings.ToLower(strings.TrimSpace(v.GetString("device_mode")))); mode {
	case ModeProd, ModeDev:
		cfg.DeviceMode = mode
	default:
		warnings = append(warnings, fmt.Sprintf("unknown device_mode %q, using %s", mode, d.DeviceMode))
		cfg.DeviceMode = d.DeviceMode
	}

	cfg.WifiCheckTimeout = seconds(v, "wifi_check_timeout_sec", d.WifiCheckTimeout, &warnings)
	cfg.WifiConnectTimeout = seconds(v, "wifi_connect_timeout_sec", d.WifiConnectTimeout, &warnings)
	cfg.BLEAdvertiseTimeout = seconds(v, "ble_advertise_timeout_sec", d.BLEAdvertiseTimeout, &warnings)

	if cfg.WifiCheckHost == "" {
		warnings = append(warnings, "empty wifi_check_host, using "+d.WifiCheckHost)
		cfg.WifiCheckHost = d.WifiCheckHost
	}
	if cfg.ProvisioningService == "" {
		cfg.ProvisioningService = d.ProvisioningService
	}
	if cfg.MirrorService == "" {
		cfg.MirrorService = d.MirrorService
	}

	return cfg, warnings
}

// seconds reads a positive number of seconds, falling back to def otherwise
func seconds(v *viper.Viper, key string, def time.Duration, warnings *[]string) time.Duration {
	secs := v.GetFloat64(key)
	if secs <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("%s must be positive (got %v), using %v", key, v.Get(key), def))
		return def
	}
	if secs*float64(time.Second) >= math.MaxInt64 {
		*warnings = append(*warnings, fmt.Sprintf("%s is out of range (got %v), using %v", key, v.Get(key), def))
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
