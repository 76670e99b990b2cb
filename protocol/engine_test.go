package protocol

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/transport"
)

func testEngine(t *testing.T) (*Engine, *transport.Harness, *fakeClock) {
	t.Helper()
	h, err := transport.NewHarness()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	rec := modemlog.New(io.Discard, 8)
	fc := &fakeClock{now: time.Unix(1700000000, 0)}
	return New(h, rec, fc.Now), h, fc
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time     { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func readFromMaster(t *testing.T, h *transport.Harness, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got < n && time.Now().Before(deadline) {
		m, err := h.Master.Read(buf[got:])
		if err != nil {
			continue
		}
		got += m
	}
	require.Equal(t, n, got, "expected to read %d bytes, got %d", n, got)
	return buf
}

func writeToMaster(t *testing.T, h *transport.Harness, s string) {
	t.Helper()
	_, err := h.Master.Write([]byte(s))
	require.NoError(t, err)
}

// TestEngineInitSequence drives the full INITTING conversation and
// checks the engine parks in IDLE with IMEI/version cached.
func TestEngineInitSequence(t *testing.T) {
	e, h, _ := testEngine(t)

	e.Tick() // leaves POWERED_DOWN, issues AT+CGSN
	require.Equal(t, StateInitting, e.ATState())
	require.Equal(t, []byte("AT+CGSN\r"), readFromMaster(t, h, len("AT+CGSN\r")))

	writeToMaster(t, h, "123456789012345\r\n0\r\n")
	e.Tick()
	require.Equal(t, "123456789012345", e.IMEI())
	require.Equal(t, []byte("AT+SBDMTA=0\r"), readFromMaster(t, h, len("AT+SBDMTA=0\r")))

	writeToMaster(t, h, "0\r\n")
	e.Tick()
	require.Equal(t, []byte("AT+SBDAREG=1\r"), readFromMaster(t, h, len("AT+SBDAREG=1\r")))

	writeToMaster(t, h, "0\r\n")
	e.Tick()
	require.Equal(t, []byte("AT+SBDIX\r\n"), readFromMaster(t, h, len("AT+SBDIX\r\n")))

	writeToMaster(t, h, "+SBDIX: 0, 12, 0, 0, 0, 0\r\n0\r\n")
	e.Tick()
	require.Equal(t, []byte("AT+CGMR\r"), readFromMaster(t, h, len("AT+CGMR\r")))

	writeToMaster(t, h, "Call Processor Version: 1.2\r\n0\r\n")
	e.Tick()

	require.Equal(t, StateIdle, e.ATState())
	require.Equal(t, "1.2", e.ModemSWVersion())
}

// TestEngineSendTextSuccess drives a successful SBDWB+SBDIX exchange.
func TestEngineSendTextSuccess(t *testing.T) {
	e, h, _ := testEngine(t)
	e.atState = StateIdle // skip init for this test

	require.True(t, e.SendText("hello"))
	require.Equal(t, []byte("AT+SBDWB=5\r"), readFromMaster(t, h, len("AT+SBDWB=5\r")))

	writeToMaster(t, h, "READY\r\n")
	e.Tick()

	frame := buildSBDWBFrame([]byte("hello"))
	require.Equal(t, frame, readFromMaster(t, h, len(frame)))

	writeToMaster(t, h, "0\r\n")
	e.Tick()
	writeToMaster(t, h, "0\r\n")
	e.Tick()

	require.Equal(t, []byte("AT+SBDIX\r\n"), readFromMaster(t, h, len("AT+SBDIX\r\n")))
	writeToMaster(t, h, "+SBDIX: 0, 13, 0, 0, 0, 0\r\n0\r\n")
	e.Tick()

	require.Equal(t, StateSuccess, e.ATState())
	e.SetIdle()
	require.Equal(t, StateIdle, e.ATState())
}

// TestEngineRequestsRejectedWhileBusy checks the idle-gated precondition.
func TestEngineRequestsRejectedWhileBusy(t *testing.T) {
	e, _, _ := testEngine(t)
	e.atState = StateIdle
	require.True(t, e.SendCSQ())
	require.False(t, e.SendCSQ())
	require.False(t, e.SendCallStatus())
}

// TestEngineCheckRingAlert drives an AT+SBDSX exchange and checks the
// RA flag lands in RingAlertPending.
func TestEngineCheckRingAlert(t *testing.T) {
	e, h, _ := testEngine(t)
	e.atState = StateIdle

	require.True(t, e.CheckRingAlert())
	require.Equal(t, []byte("AT+SBDSX\r"), readFromMaster(t, h, len("AT+SBDSX\r")))

	writeToMaster(t, h, "+SBDSX: 1, 9, 0, 0, 1, 0\r\n0\r\n")
	e.Tick()

	require.Equal(t, StateSuccess, e.ATState())
	require.True(t, e.RingAlertPending())
}

// TestAuxProgramRetryThenSuccess exercises a recoverable 'N' cancel
// before the board finally accepts the line.
func TestAuxProgramRetryThenSuccess(t *testing.T) {
	e, h, _ := testEngine(t)
	e.atState = StateIdle

	lines := [][]byte{[]byte("line1\r")}
	idx := 0
	next := func() ([]byte, bool) {
		if idx >= len(lines) {
			return nil, false
		}
		l := lines[idx]
		idx++
		return l, true
	}

	require.True(t, e.ProgramAux(next))
	require.Equal(t, transport.ProgrammingPort, h.Route())
	readFromMaster(t, h, len("~"))

	writeToMaster(t, h, "20400000 1B010000\r")
	e.Tick()
	readFromMaster(t, h, len("reload flash\r"))

	writeToMaster(t, h, ":\r")
	e.Tick()

	readFromMaster(t, h, len("line1\r"))
	writeToMaster(t, h, "N")
	e.Tick()
	require.Equal(t, StateProgramming, e.ATState())

	// recoverable N cancels in flight and restarts the whole handshake.
	readFromMaster(t, h, len("c\r~"))
	writeToMaster(t, h, "20400000 1B010000\r")
	e.Tick()
	readFromMaster(t, h, len("reload flash\r"))

	writeToMaster(t, h, ":\r")
	e.Tick()

	readFromMaster(t, h, len("line1\r"))
	writeToMaster(t, h, "C")
	e.Tick()

	require.Equal(t, StateSuccess, e.ATState())
}
