package apilayer

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlink/moduart/driverconfig"
	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/mtroute"
	"github.com/sbdlink/moduart/outbox"
	"github.com/sbdlink/moduart/protocol"
	"github.com/sbdlink/moduart/transport"
)

func testLayer(t *testing.T) (*Layer, *transport.Harness) {
	t.Helper()
	h, err := transport.NewHarness()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	rec := modemlog.New(io.Discard, 8)
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	eng := protocol.New(h, rec, clock)

	cfg := driverconfig.Default()
	ob := outbox.New(t.TempDir(), "", outbox.KeepNone)
	router, err := mtroute.New(t.TempDir(), "%Y%m%d", nil)
	require.NoError(t, err)

	l := New(eng, cfg, ob, router, rec, clock, nil)
	return l, h
}

func TestEnqueueAuxDedupsSameCommand(t *testing.T) {
	l, _ := testLayer(t)
	assert.True(t, l.EnqueueSetRelay(0, true))
	assert.False(t, l.EnqueueSetRelay(0, true), "duplicate pending command should be rejected")
	assert.Equal(t, 1, l.QueueDepth())
}

func TestEnqueueAuxAllowsDistinctCommands(t *testing.T) {
	l, _ := testLayer(t)
	assert.True(t, l.EnqueueSetRelay(0, true))
	assert.True(t, l.EnqueueSetRelay(1, true))
	assert.True(t, l.EnqueueGetRingerStatus())
	assert.Equal(t, 3, l.QueueDepth())
}

func TestEnqueueAuxRespectsCapacity(t *testing.T) {
	l, _ := testLayer(t)
	l.cfg.AuxQueueDepth = 2
	assert.True(t, l.EnqueueSetRelay(0, true))
	assert.True(t, l.EnqueueSetRelay(1, true))
	assert.False(t, l.EnqueueGetRingerStatus(), "queue is at capacity")
}

func TestTickLeavesPoweredDownOnceModemReady(t *testing.T) {
	l, _ := testLayer(t)
	require.Equal(t, WFPoweredDown, l.State())

	l.Tick()
	assert.Equal(t, WFInitting, l.State())
}

func TestTickStaysPoweredDownWhileVoiceCallActive(t *testing.T) {
	l, h := testLayer(t)
	h.SetDSR(true)

	l.Tick()
	assert.Equal(t, WFPoweredDown, l.State())
}

func TestStateReflectsPoweredDownInitially(t *testing.T) {
	l, _ := testLayer(t)
	assert.Equal(t, WFPoweredDown, l.State())
}

// driveInit plays the fixed init conversation over h until the engine
// reaches IDLE, used by tests that need a Layer past POWERED_DOWN.
func driveInit(t *testing.T, l *Layer, h *transport.Harness) {
	t.Helper()
	l.Tick() // issues AT+CGSN
	writeAndTick(t, l, h, "AT+CGSN\r", "123456789012345\r\n0\r\n")
	writeAndTick(t, l, h, "AT+SBDMTA=0\r", "0\r\n")
	writeAndTick(t, l, h, "AT+SBDAREG=1\r", "0\r\n")
	writeAndTick(t, l, h, "AT+SBDIX\r\n", "+SBDIX: 0, 1, 0, 0, 0, 0\r\n0\r\n")
	writeAndTick(t, l, h, "AT+CGMR\r", "Call Processor Version: 1.0\r\n0\r\n")
	require.Equal(t, WFIdle, l.State())
}

func writeAndTick(t *testing.T, l *Layer, h *transport.Harness, expectWrite, reply string) {
	t.Helper()
	buf := make([]byte, len(expectWrite))
	_, err := io.ReadFull(h.Master, buf)
	require.NoError(t, err)
	require.Equal(t, expectWrite, string(buf))
	_, err = h.Master.Write([]byte(reply))
	require.NoError(t, err)
	l.Tick()
}

// TestRingAlertPendingTriggersMailboxCheck drives a real AT+SBDSX
// exchange reporting RA=1 (issued directly, ahead of the scheduled
// ringAlertTimer) and checks the layer's own cleanUpOnIdle turns that
// into an AT+SBDD0/AT+SBDIXA mailbox check, started on the same tick.
func TestRingAlertPendingTriggersMailboxCheck(t *testing.T) {
	l, h := testLayer(t)
	driveInit(t, l, h)

	require.True(t, l.eng.CheckRingAlert())
	l.currentOp = opRingAlertCheck

	buf := make([]byte, len("AT+SBDSX\r"))
	_, err := io.ReadFull(h.Master, buf)
	require.NoError(t, err)
	_, err = h.Master.Write([]byte("+SBDSX: 0, 3, 0, 0, 1, 0\r\n0\r\n"))
	require.NoError(t, err)

	l.Tick()
	assert.Equal(t, opMailboxCheck, l.currentOp)
}

// TestAuxQueueDrainsWhilePoweredDown checks an aux command starts even
// before the modem has finished initting, since the aux board has its
// own power rail (spec §4.2 POWERED_DOWN case).
func TestAuxQueueDrainsWhilePoweredDown(t *testing.T) {
	l, h := testLayer(t)
	h.SetModemPowered(false)
	require.Equal(t, WFPoweredDown, l.State())

	require.True(t, l.EnqueueSetRelay(0, true))
	require.Equal(t, CmdWaiting, l.CommandResponse(protocol.AuxSetRelay1On))

	l.Tick()

	assert.Equal(t, protocol.StateProgramming, l.eng.ATState())
	assert.Equal(t, 0, l.QueueDepth())
}

// TestCSQDebounceClearsSignalAfterMaxRetries drives repeated failed
// AT+CSQF polls and checks the cached signal strength is cleared to -1
// only once the debounce limit is exhausted.
func TestCSQDebounceClearsSignalAfterMaxRetries(t *testing.T) {
	l, h := testLayer(t)
	l.cfg.CSQMaxRetries = 2
	// Nonzero so that, under the fixed test clock, the layer never
	// re-polls on its own and every poll below is driven by hand.
	l.cfg.CSQRetryDelaySec = 25
	driveInit(t, l, h)

	require.True(t, l.eng.SendCSQ())
	l.currentOp = opGettingCSQ
	writeAndTick(t, l, h, "AT+CSQF\r", "+CSQF:3\r\n0\r\n")
	require.Equal(t, 3, l.eng.SignalStrength())

	for i := 0; i < l.cfg.CSQMaxRetries-1; i++ {
		require.True(t, l.eng.SendCSQ())
		l.currentOp = opGettingCSQ
		writeAndTick(t, l, h, "AT+CSQF\r", "4\r\n")
		assert.Equal(t, 3, l.eng.SignalStrength(), "iteration %d should not yet clear signal strength", i)
	}

	require.True(t, l.eng.SendCSQ())
	l.currentOp = opGettingCSQ
	writeAndTick(t, l, h, "AT+CSQF\r", "4\r\n")
	assert.Equal(t, -1, l.eng.SignalStrength())
	assert.Equal(t, 0, l.csqDebounceCount)
}

// TestTxFileRetriesThenMovesToErrorSubdir exercises cleanUpTxFile
// directly: a failed send is retried up to MsgMaxRetries, then the
// file is relocated to the outbox's Error subdir.
func TestTxFileRetriesThenMovesToErrorSubdir(t *testing.T) {
	l, _ := testLayer(t)
	l.cfg.MsgMaxRetries = 2
	dir := t.TempDir()
	l.cfg.OutboxDir = dir
	path := dir + "/msg0001"
	require.NoError(t, writeFile(path, []byte("payload")))

	l.currentFile = path
	l.cleanUpTxFile(false)
	assert.Equal(t, 1, l.fileSendRetryCount)
	assertFileExists(t, path)

	l.currentFile = path
	l.cleanUpTxFile(false)
	assert.Equal(t, 0, l.fileSendRetryCount)
	assertFileExists(t, dir+"/Error/msg0001")
	assert.True(t, l.waitForCallsTimer.Armed())
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err)
}
