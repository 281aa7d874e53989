// Package serial speaks the brew machine's line protocol over an RS-485
// adapter: short ASCII commands framed with a CRC16 and a carriage return,
// answered by pipe-delimited payloads carrying the same framing.
package serial

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	goserial "github.com/tarm/serial"

	"github.com/brewforge/brewd/models"
)

// frame builds one outbound command: '0' + device id digit, the payload,
// a big-endian CRC16 of everything before it, and a trailing CR.
func frame(deviceID int, payload []byte) []byte {
	cmd := []byte{'0', byte(deviceID + '0')}
	cmd = append(cmd, payload...)
	cmd = append(cmd, checksum(cmd)...)
	return append(cmd, '\r')
}

// checksum is the controller firmware's CRC16 (poly 0x8810, rotate-left with
// carry feedback), big-endian.
func checksum(data []byte) []byte {
	cs := uint16(0)
	for _, b := range data {
		cs ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			carry := cs & 0x8000
			if carry != 0 {
				cs ^= 0x8810
			}
			cs = (cs << 1) + (carry >> 15)
		}
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, cs)
	return out
}

// exchange writes one framed command and waits for a newline-terminated
// response within the timeout.
func exchange(sp *goserial.Port, cmd []byte, timeout time.Duration) ([]byte, error) {
	if _, err := sp.Write(cmd); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 128)
	for time.Now().Before(deadline) {
		n, err := sp.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if strings.ContainsAny(string(buf), "\n") {
				return buf, nil
			}
		}
		if err != nil && n == 0 {
			// tarm returns timeout errors on idle reads; keep waiting until
			// the overall deadline.
			time.Sleep(5 * time.Millisecond)
		}
	}
	return buf, fmt.Errorf("read timeout after %s; got %d bytes % X", timeout, len(buf), buf)
}

// payloadOf validates a response against the command that produced it (echoed
// device id, intact CRC) and strips the framing, returning the bare payload.
func payloadOf(resp, cmd []byte) (string, error) {
	s := string(resp)
	if len(s) < 6 {
		return "", fmt.Errorf("short response (%d bytes)", len(s))
	}
	if s[:2] != string(cmd[:2]) || s[2] != '|' {
		return "", fmt.Errorf("response for wrong device or malformed header")
	}
	end := strings.Index(s, "\r\n")
	if end == -1 {
		end = strings.Index(s, "\n")
	}
	if end < 5 {
		return "", fmt.Errorf("missing terminator")
	}
	got := resp[end-2 : end]
	want := checksum(resp[:end-2])
	if got[0] != want[0] || got[1] != want[1] {
		return "", fmt.Errorf("checksum mismatch: want %02X%02X got %02X%02X", want[0], want[1], got[0], got[1])
	}
	return s[3 : end-2], nil
}

// sensor fault flag bits in the sample payload's flags field.
const (
	flagPressureFault = 1 << 0
	flagFlowFault     = 1 << 1
	flagScaleFault    = 1 << 2
)

// parseSample decodes a sample poll payload:
// pressure|flow|temp|weight|flags, all decimal, flags hex.
func parseSample(payload string, at time.Time) (models.Sample, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 5 {
		return models.Sample{}, fmt.Errorf("sample payload has %d fields, want 5", len(parts))
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return models.Sample{}, fmt.Errorf("sample field %d: %w", i, err)
		}
		vals[i] = v
	}
	flags, err := strconv.ParseUint(strings.TrimSpace(parts[4]), 16, 8)
	if err != nil {
		return models.Sample{}, fmt.Errorf("sample flags: %w", err)
	}
	return models.Sample{
		At:        at,
		PressureB: vals[0],
		FlowMLs:   vals[1],
		TempC:     vals[2],
		WeightG:   vals[3],
		Fault:     flags&(flagPressureFault|flagFlowFault|flagScaleFault) != 0,
	}, nil
}
