package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildResponse frames a device reply the way the controller firmware does:
// echoed id, '|', payload, CRC16, CRLF.
func buildResponse(deviceID int, payload string) []byte {
	body := append([]byte{'0', byte(deviceID + '0'), '|'}, []byte(payload)...)
	body = append(body, checksum(body)...)
	return append(body, '\r', '\n')
}

func TestFrameLayout(t *testing.T) {
	cmd := frame(2, []byte("V"))

	require.GreaterOrEqual(t, len(cmd), 6)
	assert.Equal(t, byte('0'), cmd[0])
	assert.Equal(t, byte('2'), cmd[1])
	assert.Equal(t, byte('V'), cmd[2])
	assert.Equal(t, byte('\r'), cmd[len(cmd)-1])
	assert.Equal(t, checksum(cmd[:3]), cmd[3:5])
}

func TestPayloadRoundTrip(t *testing.T) {
	cmd := frame(1, []byte("S"))
	resp := buildResponse(1, "9.02|1.48|92.5|18.3|00")

	payload, err := payloadOf(resp, cmd)
	require.NoError(t, err)
	assert.Equal(t, "9.02|1.48|92.5|18.3|00", payload)
}

func TestPayloadRejectsCorruption(t *testing.T) {
	cmd := frame(1, []byte("S"))

	resp := buildResponse(1, "9.02|1.48|92.5|18.3|00")
	resp[5] ^= 0x01 // flip one payload bit
	_, err := payloadOf(resp, cmd)
	assert.ErrorContains(t, err, "checksum")

	// Reply from a different bus address.
	other := buildResponse(3, "9.02|1.48|92.5|18.3|00")
	_, err = payloadOf(other, cmd)
	assert.Error(t, err)

	_, err = payloadOf([]byte("01|"), cmd)
	assert.Error(t, err)
}

func TestParseSample(t *testing.T) {
	now := time.Now()
	s, err := parseSample("9.02|1.48|92.5|18.3|00", now)
	require.NoError(t, err)
	assert.Equal(t, 9.02, s.PressureB)
	assert.Equal(t, 1.48, s.FlowMLs)
	assert.Equal(t, 92.5, s.TempC)
	assert.Equal(t, 18.3, s.WeightG)
	assert.False(t, s.Fault)
	assert.Equal(t, now, s.At)
}

func TestParseSampleFaultFlags(t *testing.T) {
	s, err := parseSample("0.0|0.0|91.0|0.0|04", time.Now())
	require.NoError(t, err)
	assert.True(t, s.Fault, "scale fault bit must mark the sample faulted")

	_, err = parseSample("9.0|1.5|92.0|18.0", time.Now())
	assert.Error(t, err, "missing flags field")

	_, err = parseSample("x|1.5|92.0|18.0|00", time.Now())
	assert.Error(t, err)
}
