package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"go.uber.org/zap"

	"dermis-firmware/pkg/wifi"
)

// UUIDs are fixed so the companion app can find the device across firmware versions
var (
	serviceUUID    = ble.MustParse("6e3c1a52-8b0f-4d7e-9a41-2f5d0c8e7b10")
	wifiCharUUID   = ble.MustParse("6e3c1a53-8b0f-4d7e-9a41-2f5d0c8e7b10")
	statusCharUUID = ble.MustParse("6e3c1a54-8b0f-4d7e-9a41-2f5d0c8e7b10")
	scanCharUUID   = ble.MustParse("6e3c1a55-8b0f-4d7e-9a41-2f5d0c8e7b10")
)

// credentialTimeout bounds one nmcli add + activation round
const credentialTimeout = 45 * time.Second

// WiFi is the narrow slice of the network manager the BLE service needs
type WiFi interface {
	SetCredentials(ctx context.Context, ssid, password string) error
	IsConfigured(ctx context.Context) bool
	Scan(ctx context.Context) ([]wifi.Network, error)
}

type Status struct {
	Configured bool   `json:"configured"`
	Applying   bool   `json:"applying"`
	LastSSID   string `json:"lastSsid,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

type credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Server exposes credential write, status read and scan read characteristics.
// There is no pairing or payload encryption.
type Server struct {
	name string
	wifi WiFi
	log  *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	applying bool
	lastSSID string
	lastErr  string
}

func NewServer(name string, w WiFi, log *zap.Logger) *Server {
	return &Server{name: name, wifi: w, log: log, ctx: context.Background()}
}

// Run advertises until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	d, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	defer d.Stop()
	ble.SetDefaultDevice(d)

	if err := ble.AddService(s.service()); err != nil {
		return fmt.Errorf("failed to add service: %w", err)
	}

	s.log.Info("BLE advertising", zap.String("name", s.name), zap.String("service", serviceUUID.String()))
	err = ble.AdvertiseNameAndServices(ctx, s.name, serviceUUID)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("advertising failed: %w", err)
	}
	s.log.Info("BLE advertising stopped")
	return nil
}

func (s *Server) service() *ble.Service {
	svc := ble.NewService(serviceUUID)

	wifiChar := svc.NewCharacteristic(wifiCharUUID)
	wifiChar.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		if err := s.handleCredentials(req.Data()); err != nil {
			s.log.Warn("BLE: rejected credentials", zap.Error(err))
			rsp.SetStatus(ble.ErrUnlikely)
		}
	}))

	statusChar := svc.NewCharacteristic(statusCharUUID)
	statusChar.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write(s.statusJSON())
	}))

	scanChar := svc.NewCharacteristic(scanCharUUID)
	scanChar.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write(s.scanJSON())
	}))

	return svc
}

// handleCredentials validates the payload and applies it in the background;
// activation can take longer than a GATT write may block.
func (s *Server) handleCredentials(data []byte) error {
	var c credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("invalid credentials payload: %w", err)
	}
	if c.SSID == "" {
		return fmt.Errorf("missing ssid")
	}

	s.mu.Lock()
	if s.applying {
		s.mu.Unlock()
		return fmt.Errorf("credentials already being applied")
	}
	s.applying = true
	s.lastSSID = c.SSID
	s.lastErr = ""
	ctx := s.ctx
	s.mu.Unlock()

	go s.apply(ctx, c)
	return nil
}

func (s *Server) apply(ctx context.Context, c credentials) {
	ctx, cancel := context.WithTimeout(ctx, credentialTimeout)
	defer cancel()

	err := s.wifi.SetCredentials(ctx, c.SSID, c.Password)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applying = false
	if err != nil {
		s.lastErr = err.Error()
		s.log.Warn("BLE: wifi credentials failed", zap.String("ssid", c.SSID), zap.Error(err))
		return
	}
	s.log.Info("BLE: wifi configured", zap.String("ssid", c.SSID))
}

func (s *Server) statusJSON() []byte {
	s.mu.Lock()
	st := Status{Applying: s.applying, LastSSID: s.lastSSID, LastError: s.lastErr}
	ctx := s.ctx
	s.mu.Unlock()

	st.Configured = s.wifi.IsConfigured(ctx)
	data, _ := json.Marshal(st)
	return data
}

func (s *Server) scanJSON() []byte {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	networks, err := s.wifi.Scan(ctx)
	if err != nil {
		s.log.Warn("BLE: scan failed", zap.Error(err))
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		return data
	}
	data, _ := json.Marshal(networks)
	return data
}
