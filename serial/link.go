package serial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goserial "github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/brewforge/brewd/models"
)

// ErrNotConnected is returned by commands issued while the link is down.
var ErrNotConnected = errors.New("machine link down")

// Config describes how to reach the brew controller.
type Config struct {
	// Port is the device name ("/dev/ttyUSB0", "COM3"). Empty triggers
	// auto-detection.
	Port string
	Baud int
	// DeviceID is the controller's bus address digit.
	DeviceID int
	// PollInterval is how often Run polls for a sample. Defaults to 50ms so
	// every 100ms control tick sees a fresh reading.
	PollInterval time.Duration
	// StaleAfter is how old the newest sample may be before Latest reports
	// no valid reading. Defaults to 300ms.
	StaleAfter time.Duration
}

func (c *Config) normalize() {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 300 * time.Millisecond
	}
}

// Link is the live connection to the machine. Its poll loop keeps the newest
// sample cached; the control loop consumes only that cached value, so a slow
// or silent wire never blocks a tick.
type Link struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	port      *goserial.Port
	last      models.Sample
	haveLast  bool
	connected bool
	version   string
	detectLog []string
}

// NewLink prepares a link without touching the wire. Connect opens it.
func NewLink(cfg Config, log *zap.Logger) *Link {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{cfg: cfg, log: log.Named("serial")}
}

// Connect opens the configured port, auto-detecting one when none is set,
// and verifies the controller answers the version probe.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return nil
	}

	name := l.cfg.Port
	if name == "" || !probePort(name, l.cfg.DeviceID, l.cfg.Baud) {
		detected, trace := AutoDetect(name, l.cfg.DeviceID, l.cfg.Baud)
		l.detectLog = trace
		if detected == "" {
			return fmt.Errorf("no brew controller found (tried %q and enumerated ports)", name)
		}
		name = detected
	}

	sp, err := goserial.OpenPort(&goserial.Config{
		Name: name, Baud: l.cfg.Baud,
		Parity: goserial.ParityNone, Size: 8, StopBits: goserial.Stop1,
		ReadTimeout: 300 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	l.port = sp
	l.cfg.Port = name
	l.connected = true

	if v, err := l.versionLocked(); err == nil {
		l.version = v
	}
	l.log.Info("machine link up", zap.String("port", name), zap.String("firmware", l.version))
	return nil
}

// Close drops the connection. Safe to call when already closed.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil
	}
	l.connected = false
	l.haveLast = false
	err := l.port.Close()
	l.port = nil
	l.log.Info("machine link closed")
	return err
}

// Run polls the controller for samples until ctx is cancelled. Poll errors
// are logged and surface as staleness, not as loop termination.
func (l *Link) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.poll(); err != nil {
				l.log.Debug("sample poll failed", zap.Error(err))
			}
		}
	}
}

func (l *Link) poll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil
	}
	cmd := frame(l.cfg.DeviceID, []byte("S"))
	raw, err := exchange(l.port, cmd, 200*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := payloadOf(raw, cmd)
	if err != nil {
		return err
	}
	sample, err := parseSample(payload, time.Now())
	if err != nil {
		return err
	}
	l.last = sample
	l.haveLast = true
	return nil
}

// Latest returns the newest cached sample. ok is false when disconnected,
// when nothing has arrived yet, or when the cache has gone stale.
func (l *Link) Latest() (models.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected || !l.haveLast {
		return models.Sample{}, false
	}
	if time.Since(l.last.At) > l.cfg.StaleAfter {
		return models.Sample{}, false
	}
	return l.last, true
}

// SetPower commands the pump drive level in [0,1].
func (l *Link) SetPower(level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}
	cmd := frame(l.cfg.DeviceID, []byte(fmt.Sprintf("P%.3f", level)))
	raw, err := exchange(l.port, cmd, 200*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := payloadOf(raw, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(payload, "OK") {
		return fmt.Errorf("pump command rejected: %q", payload)
	}
	return nil
}

// Tare zeroes the machine's scale. Issued before a shot starts.
func (l *Link) Tare() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}
	cmd := frame(l.cfg.DeviceID, []byte("T"))
	raw, err := exchange(l.port, cmd, 300*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := payloadOf(raw, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(payload, "OK") {
		return fmt.Errorf("tare rejected: %q", payload)
	}
	return nil
}

// Version returns the firmware banner captured at connect time.
func (l *Link) Version() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

func (l *Link) versionLocked() (string, error) {
	cmd := frame(l.cfg.DeviceID, []byte("V"))
	raw, err := exchange(l.port, cmd, 300*time.Millisecond)
	if err != nil {
		return "", err
	}
	return payloadOf(raw, cmd)
}

// Connected reports link state for the health aggregator's network probe.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// SensorStatus feeds the health aggregator: fresh is Latest-style freshness,
// faulted reflects the newest reading's fault flags.
func (l *Link) SensorStatus() (fresh, faulted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected || !l.haveLast {
		return false, false
	}
	return time.Since(l.last.At) <= l.cfg.StaleAfter, l.last.Fault
}

// Port returns the active (or configured) port name.
func (l *Link) Port() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Port
}

// DetectTrace returns the last auto-detection trace for diagnostics.
func (l *Link) DetectTrace() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.detectLog))
	copy(out, l.detectLog)
	return out
}
