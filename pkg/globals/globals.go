package globals

// FirmwareVersion is set at build time via -ldflags
var FirmwareVersion = "dev"

// Writable data directory
var DataDir = "/opt/dermis"

// Config
var ConfigPath = DataDir + "/config.json"

// Boot state, overwritten on every supervisor transition
var StatePath = DataDir + "/state.json"

// Logs
var LogsPath = DataDir + "/logs/supervisor.log"

// LED helper invoked with a single pattern argument
var LedHelperPath = DataDir + "/led_helper.sh"

// Systemd unit names for the two long-running services
const (
	ProvisioningService = "dermis-ble.service"
	MirrorService       = "dermis-mirror.service"
	SupervisorService   = "dermis-supervisor.service"
)

// Where the supervisor unit gets installed
var SystemdUnitDir = "/etc/systemd/system"

// Supervisor binary installed by the image build
var SupervisorBinPath = "/usr/local/bin/dermis-supervisor"

// Name advertised over BLE while provisioning
const DeviceName = "Dermis-Mirror"
