package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestBuildSBDWBFrameChecksumRoundTrip is the spec §8 testable property:
// "bytes transmitted after READY equal P concatenated with
// [sum_high, sum_low]", verified by re-deriving the checksum from the
// frame's own payload slice.
func TestBuildSBDWBFrameChecksumRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, MaxFileLen).Draw(rt, "payload")
		frame := buildSBDWBFrame(payload)
		require.Len(rt, frame, len(payload)+2)
		got := uint16(frame[len(payload)])<<8 | uint16(frame[len(payload)+1])
		assert.Equal(rt, checksum16(payload), got)
	})
}

func TestBinaryDownlinkAssemblerRoundTrip(t *testing.T) {
	payload := []byte("hello mt message")
	sum := checksum16(payload)
	frame := append([]byte{byte(len(payload) >> 8), byte(len(payload))}, payload...)
	frame = append(frame, byte(sum>>8), byte(sum))

	a := newBinaryDownlinkAssembler()
	var complete, ok bool
	for _, b := range frame {
		complete, ok = a.Feed(b)
	}
	require.True(t, complete)
	assert.True(t, ok)
	assert.Equal(t, payload, a.Payload())
}

func TestBinaryDownlinkAssemblerBadChecksum(t *testing.T) {
	payload := []byte("x")
	frame := []byte{0, 1, payload[0], 0xFF, 0xFF}
	a := newBinaryDownlinkAssembler()
	var complete, ok bool
	for _, b := range frame {
		complete, ok = a.Feed(b)
	}
	require.True(t, complete)
	assert.False(t, ok)
}

func TestClassifyAuxProgByte(t *testing.T) {
	assert.Equal(t, auxProgContinue, classifyAuxProgByte('a'))
	assert.Equal(t, auxProgSuccess, classifyAuxProgByte('C'))
	assert.Equal(t, auxProgRetryLine, classifyAuxProgByte('N'))
	assert.Equal(t, auxProgTerminalFail, classifyAuxProgByte('M'))
	assert.Equal(t, auxProgTerminalFail, classifyAuxProgByte('?'))
}
