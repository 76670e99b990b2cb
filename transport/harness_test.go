package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarnessRoundTrip(t *testing.T) {
	h, err := NewHarness()
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write([]byte("AT+CGSN\r"))
	require.NoError(t, err)

	var got []byte
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(got) < len("AT+CGSN\r") {
		buf := make([]byte, 1)
		n, rerr := h.Master.Read(buf)
		if rerr == nil && n == 1 {
			got = append(got, buf[0])
		}
	}
	assert.Equal(t, "AT+CGSN\r", string(got))
}

func TestHarnessControlLines(t *testing.T) {
	h, err := NewHarness()
	require.NoError(t, err)
	defer h.Close()

	assert.False(t, h.DSR())
	h.SetDSR(true)
	assert.True(t, h.DSR())

	assert.Equal(t, DataPort, h.Route())
	require.NoError(t, h.SetRoute(ProgrammingPort))
	assert.Equal(t, ProgrammingPort, h.Route())
}
