package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	goserial "github.com/tarm/serial"
	"go.bug.st/serial/enumerator"
)

// ListPorts returns a sorted, de-duplicated best-effort list of serial port
// device names, preferring the OS enumerator over filesystem globs.
func ListPorts() []string {
	if ports, err := enumerator.GetDetailedPortsList(); err == nil && len(ports) > 0 {
		seen := make(map[string]struct{}, len(ports))
		out := make([]string, 0, len(ports))
		for _, p := range ports {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p.Name)
		}
		sort.Strings(out)
		return out
	}

	switch runtime.GOOS {
	case "windows":
		// Enumeration is unreliable on some Windows setups; AutoDetect falls
		// back to a COM scan.
		return nil
	case "darwin":
		return listByGlob("/dev/cu.*", "/dev/tty.*")
	default:
		return listByGlob("/dev/ttyUSB*", "/dev/ttyACM*", "/dev/tty.*")
	}
}

func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 16)
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// AutoDetect finds a port with a brew controller answering the version probe.
// It returns the port name (empty when nothing answered) plus a trace of what
// was tried, which the diagnostics endpoint surfaces to the operator.
func AutoDetect(preferred string, deviceID, baud int) (string, []string) {
	trace := make([]string, 0, 8)
	preferred = strings.TrimSpace(preferred)

	// The configured port first: deterministic fast path when the adapter
	// stays plugged into the same socket.
	if preferred != "" {
		trace = append(trace, fmt.Sprintf("probing configured port %q (baud=%d)", preferred, baud))
		if probePort(preferred, deviceID, baud) {
			trace = append(trace, fmt.Sprintf("found controller on configured port %q", preferred))
			return preferred, trace
		}
	}

	if ports := ListPorts(); len(ports) > 0 {
		trace = append(trace, fmt.Sprintf("enumerated %d port(s): %v", len(ports), ports))
		for _, name := range ports {
			if preferred != "" && strings.EqualFold(name, preferred) {
				continue
			}
			trace = append(trace, "probing "+name)
			if probePort(name, deviceID, baud) {
				trace = append(trace, "found controller on "+name)
				return name, trace
			}
		}
		trace = append(trace, "no enumerated port answered the version probe")
		return "", trace
	}

	if runtime.GOOS == "windows" {
		trace = append(trace, "no ports enumerated; scanning COM1..COM64")
		for i := 1; i <= 64; i++ {
			name := fmt.Sprintf("COM%d", i)
			if probePort(name, deviceID, baud) {
				trace = append(trace, "found controller on "+name)
				return name, trace
			}
		}
		trace = append(trace, "COM scan found no controller")
	}
	return "", trace
}

// probePort opens the port and issues a version command, retrying once since
// the first response after a port opens is often lost to driver buffering.
func probePort(name string, deviceID, baud int) bool {
	sp, err := goserial.OpenPort(&goserial.Config{
		Name: name, Baud: baud,
		Parity: goserial.ParityNone, Size: 8, StopBits: goserial.Stop1,
		ReadTimeout: 300 * time.Millisecond,
	})
	if err != nil {
		return false
	}
	defer func() { _ = sp.Close() }()

	cmd := frame(deviceID, []byte("V"))
	time.Sleep(40 * time.Millisecond)
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := exchange(sp, cmd, 350*time.Millisecond)
		if err == nil {
			if payload, perr := payloadOf(raw, cmd); perr == nil && strings.Contains(payload, "brewctl") {
				return true
			}
		}
		time.Sleep(80 * time.Millisecond)
	}
	return false
}
