package protocol

import (
	"time"

	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/transport"
)

// Engine is the protocol engine from spec §4.1: a single-threaded,
// tick-driven state machine that owns the shared UART, runs exactly
// one command at a time against either the modem or the aux board, and
// exposes the result through polled accessors rather than callbacks.
//
// Nothing here blocks. Tick is expected to be called on a steady
// cadence (the daemon's main loop) and does a bounded amount of work:
// drain whatever bytes are currently available, advance the state
// machine, and return.
type Engine struct {
	serial transport.Serial
	log    *modemlog.Recorder
	clock  func() time.Time

	atState  ATState
	subState SubState
	info     ModemInfo
	lastErr  ErrorCode

	lineAsm *lineAssembler
	dualAsm *dualEOLAssembler
	binAsm  *binaryDownlinkAssembler

	deadline Deadline

	satelliteTimeout time.Duration
	stdTimeout       time.Duration
	auxTimeout       time.Duration

	initStep    int
	initRetries int

	// initWaiting/initNextStep implement spec §4.1's "gate each init
	// step on the absence of a voice call": advanceInit defers sending
	// the next command while DSR is high and logs the hook edges.
	initWaiting  bool
	initNextStep SubState

	pendingPayload []byte
	pendingIsText  bool

	auxNextLine    NextConfigLineFunc
	auxRetryCount  int
	auxCurrentLine []byte

	// auxLines/auxLineIdx buffer every line pulled from auxNextLine so
	// a recoverable-retry restart (spec §4.1 aux programming step 3)
	// can rewind to the first config line without re-invoking the
	// caller-supplied, one-way NextConfigLineFunc.
	auxLines                [][]byte
	auxLineIdx               int
	auxAwaitingBlockConfirm bool

	auxDownloadBuf []byte

	sbdix   sbdixResult
	cregErr ErrorCode

	auxQueryKind int // 0 none, 1 ringer, 2 relay
	auxQueryIdx  int
}

// New constructs an Engine in POWERED_DOWN, matching spec §4.1's
// "on construction at_state = POWERED_DOWN".
func New(s transport.Serial, rec *modemlog.Recorder, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		serial:           s,
		log:              rec,
		clock:            clock,
		atState:          StatePoweredDown,
		info:             newModemInfo(),
		lineAsm:          newLineAssembler('\n'),
		dualAsm:          newDualEOLAssembler(':'), // finalByte replaced per exchange
		binAsm:           newBinaryDownlinkAssembler(),
		satelliteTimeout: auxSatTimeoutSec * time.Second,
		stdTimeout:       auxStdTimeoutSec * time.Second,
		auxTimeout:       auxStdTimeoutSec * time.Second,
	}
}

// SetSatelliteTimeout overrides the AT+SBDIX/AT+SBDIXA response window
// (default 65s); configurable per spec §6.
func (e *Engine) SetSatelliteTimeout(d time.Duration) { e.satelliteTimeout = d }

// ---- poll accessors (spec §4.1 "Public contract") ----

func (e *Engine) ATState() ATState   { return e.atState }
func (e *Engine) SubState() SubState { return e.subState }

// ErrorCode returns the last reported fault and clears it, matching
// "error_code() resets to NONE on read".
func (e *Engine) ErrorCode() ErrorCode {
	c := e.lastErr
	e.lastErr = ErrNone
	return c
}

func (e *Engine) SignalStrength() int { return e.info.SignalStrength }

// ClearSignalStrength resets the cached CSQ reading to "unknown" (spec
// §4.2 CSQ debounce: repeated CSQ failures clear signal strength to -1
// rather than leaving a stale reading cached).
func (e *Engine) ClearSignalStrength() { e.info.SignalStrength = -1 }
func (e *Engine) CallStatus() CallStatus { return e.info.CallStatus }
func (e *Engine) RingerCached() bool     { return e.info.RingersOn }
func (e *Engine) RelayCached(idx int) RelayState {
	if idx < 0 || idx > 1 {
		return RelayUnknown
	}
	return e.info.RelayOn[idx]
}
func (e *Engine) IMEI() string           { return e.info.IMEI }
func (e *Engine) ModemSWVersion() string { return e.info.ModemSWVersion }
func (e *Engine) MOMSN() string          { return e.info.MOMSN }
func (e *Engine) MTMSN() string          { return e.info.MTMSN }
func (e *Engine) MTLength() int          { return e.info.MTLength }
func (e *Engine) MTQueueNbr() int        { return e.info.MTQueueNbr }

// DSR reports the modem's DSR control line, high while a voice call is
// active (spec §6 control-line semantics). RI reports the incoming-call
// ring line. Both let callers above this package apply the same
// off-hook gating the engine applies to its own init sequence.
func (e *Engine) DSR() bool { return e.serial.DSR() }
func (e *Engine) RI() bool  { return e.serial.RI() }

// MTStatus returns the outcome of the last mailbox check and resets it
// to MTNone, preserving MTLength/MTMSN for the caller to read first.
func (e *Engine) MTStatus() MTStatus {
	s := e.info.MTStatus
	e.info.MTStatus = MTNone
	return s
}

// ---- idle-gated request API ----

// idle reports whether the engine can accept a new command.
func (e *Engine) idle() bool { return e.atState == StateIdle }

func (e *Engine) beginModem(sub SubState, eol byte, req string, timeout time.Duration) bool {
	if !e.idle() {
		return false
	}
	e.atState = StateSending
	e.subState = sub
	e.lineAsm = newLineAssembler(eol)
	e.lineAsm.Reset()
	if _, err := e.serial.Write([]byte(req)); err != nil {
		e.fail(ErrRspTimedOut)
		return true
	}
	e.deadline.Arm(e.clock(), timeout)
	return true
}

// SendText submits a short text MO payload for transmission.
func (e *Engine) SendText(s string) bool {
	return e.sendBuffer([]byte(s), true)
}

// SendBinaryBuffer submits a raw binary MO payload for transmission.
// There is no file-path variant (spec §4.1 "send_binary_file") in this
// package: the API layer reads the next file with outbox.Outbox.Next
// and passes its bytes to this.
func (e *Engine) SendBinaryBuffer(p []byte) bool {
	return e.sendBuffer(p, false)
}

func (e *Engine) sendBuffer(p []byte, isText bool) bool {
	if !e.idle() {
		return false
	}
	if len(p) > MaxFileLen {
		p = p[:MaxFileLen]
	}
	e.pendingPayload = p
	e.pendingIsText = isText
	e.atState = StateSending
	e.subState = SubWaitReady
	e.lineAsm.Reset()
	req := atCmdSBDWB(len(p))
	if _, err := e.serial.Write([]byte(req)); err != nil {
		e.fail(ErrRspTimedOut)
		return true
	}
	e.deadline.Arm(e.clock(), e.stdTimeout)
	return true
}

func atCmdSBDWB(n int) string {
	return "AT+SBDWB=" + itoa(n) + "\r"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CheckGateway sends AT+SBDIX to force a mailbox check against the
// gateway even with no MO payload queued.
func (e *Engine) CheckGateway() bool {
	return e.beginModem(SubWaitSBDIXResult, '\n', cmdSBDIXEmpty, e.satelliteTimeout)
}

// CheckMailbox clears the MO buffer with AT+SBDD0 and, once that
// completes, runs AT+SBDIXA — the ring-alert-triggered mailbox check
// (spec §4.1 "check_mailbox()").
func (e *Engine) CheckMailbox() bool {
	return e.beginModem(SubWaitSBDD0Result, '\n', cmdSBDD0, e.stdTimeout)
}

// CheckRingAlert sends AT+SBDSX to read the RA flag: whether the
// gateway has MT traffic waiting without having to spend a full
// SBDIX session finding out.
func (e *Engine) CheckRingAlert() bool {
	return e.beginModem(SubWaitSBDSX, '\n', cmdSBDSX, e.stdTimeout)
}

// RingAlertPending reports the RA flag from the last CheckRingAlert.
func (e *Engine) RingAlertPending() bool { return e.info.RAFlag != 0 }

// SendCSQ polls signal quality.
func (e *Engine) SendCSQ() bool {
	return e.beginModem(SubWaitCSQ, '\n', cmdCSQF, e.stdTimeout)
}

// ReadBinary issues AT+SBDRB to download the pending MT payload.
func (e *Engine) ReadBinary() bool {
	if !e.idle() {
		return false
	}
	e.atState = StateRcving
	e.subState = SubGetData
	e.binAsm.Reset()
	if _, err := e.serial.Write([]byte(cmdSBDRB)); err != nil {
		e.fail(ErrRspTimedOut)
		return true
	}
	e.deadline.Arm(e.clock(), e.stdTimeout)
	return true
}

// SendCallStatus polls +CLCC.
func (e *Engine) SendCallStatus() bool {
	return e.beginModem(SubWaitCLCC, '\n', cmdCLCC, e.stdTimeout)
}

// SendHangup issues ATH.
func (e *Engine) SendHangup() bool {
	return e.beginModem(SubWaitHangupOK, '\n', cmdATH, e.stdTimeout)
}

// SendCREG polls registration state.
func (e *Engine) SendCREG() bool {
	return e.beginModem(SubWaitCREG, '\n', cmdCREG, e.stdTimeout)
}

// Reset drops the engine back to POWERED_DOWN and clears the cached
// modem info, so the next tick re-runs the init sequence once the modem
// reports power. It does not toggle any power line. Refused while a
// voice call is active or an operation is in flight.
func (e *Engine) Reset() bool {
	if !e.idle() {
		return false
	}
	if e.serial.DSR() {
		e.lastErr = ErrCallActive
		return false
	}
	e.atState = StatePoweredDown
	e.subState = SubNone
	e.info = newModemInfo()
	return true
}

// SetIdle acknowledges a terminal outcome (SUCCESS/FAILED/TIMED_OUT)
// and parks the engine back in IDLE.
func (e *Engine) SetIdle() {
	switch e.atState {
	case StateSuccess, StateFailed, StateTimedOut:
		e.atState = StateIdle
		e.subState = SubNone
	}
}

// SetInitting forces the init sequence to re-run without discarding
// the cached IMEI/version, used after a comms fault short of a full
// power cycle.
func (e *Engine) SetInitting() {
	if e.atState != StatePoweredDown {
		e.atState = StateInitting
		e.subState = SubInitIMEI
		e.initStep = 0
		e.initRetries = 0
		e.runInitStep()
	}
}

// ---- aux-board operations ----

// beginAux starts an aux-board exchange. Unlike the modem-facing
// operations it also runs from POWERED_DOWN: the aux board has its own
// power rail and UART route, so the driver's queued relay/ringer/
// config commands still need to drain while the modem itself stays
// off (spec §4.2 POWERED_DOWN case "drain aux queue").
func (e *Engine) beginAux(sub SubState, req string, echoFinal byte, timeout time.Duration) bool {
	if e.atState != StateIdle && e.atState != StatePoweredDown {
		return false
	}
	if e.serial.Route() != transport.ProgrammingPort {
		if err := e.serial.SetRoute(transport.ProgrammingPort); err != nil {
			e.lastErr = ErrAuxEchoMismatch
			return false
		}
	}
	e.atState = StateProgramming
	e.subState = sub
	e.dualAsm = newDualEOLAssembler(echoFinal)
	if _, err := e.serial.Write([]byte(req)); err != nil {
		e.fail(ErrAuxEchoMismatch)
		return true
	}
	e.deadline.Arm(e.clock(), timeout)
	return true
}

func (e *Engine) SetRinger(on bool) bool {
	e.auxQueryKind = 0
	return e.beginAux(SubAuxCmdEcho, ringerCommand(on), '\r', e.auxTimeout)
}

func (e *Engine) GetRingerStatus() bool {
	ok := e.beginAux(SubAuxCmdEcho, ringerQueryCommand, '\r', e.auxTimeout)
	if ok {
		e.auxQueryKind = 1
	}
	return ok
}

func (e *Engine) SetRelay(idx int, on bool) bool {
	if idx < 0 || idx > 1 {
		return false
	}
	e.auxQueryKind = 0
	ok := e.beginAux(SubAuxCmdEcho, relayCommand(idx, on), '\r', e.auxTimeout)
	if ok {
		e.info.CurrentRelayIdx = idx
	}
	return ok
}

func (e *Engine) GetRelayStatus(idx int) bool {
	if idx < 0 || idx > 1 {
		return false
	}
	ok := e.beginAux(SubAuxCmdEcho, relayQueryCommand(idx), '\r', e.auxTimeout)
	if ok {
		e.info.CurrentRelayIdx = idx
		e.auxQueryKind = 2
		e.auxQueryIdx = idx
	}
	return ok
}

func (e *Engine) ResetAux() bool {
	return e.beginAux(SubAuxCmdEcho, auxResetCommand, '\r', auxSatTimeoutSec*time.Second)
}

// DownloadAuxConfig captures the aux board's current config, capped at
// MaxCfgDownloadSize, reusing buf's backing array. The captured bytes
// are read back with AuxDownloadResult; *buf itself is not updated.
func (e *Engine) DownloadAuxConfig(buf *[]byte) bool {
	if buf == nil {
		return false
	}
	if !e.beginAux(SubAuxDownloadCapture, auxCmdDownloadCfg, '\n', auxSatTimeoutSec*time.Second) {
		return false
	}
	e.auxDownloadBuf = (*buf)[:0]
	return true
}

// ProgramAux streams flash programming lines supplied by next until it
// reports ok=false or the board signals a terminal failure.
func (e *Engine) ProgramAux(next NextConfigLineFunc) bool {
	if !e.idle() || next == nil {
		return false
	}
	e.auxNextLine = next
	e.auxRetryCount = 0
	e.auxLines = nil
	e.auxLineIdx = 0
	e.auxAwaitingBlockConfirm = false
	if !e.beginAux(SubAuxProgVersion, auxCmdVersionCheck, '\r', auxSatTimeoutSec*time.Second) {
		return false
	}
	e.lineAsm = newLineAssembler('\r')
	e.lineAsm.Reset()
	return true
}

// ---- terminal helpers ----

func (e *Engine) succeed() {
	e.atState = StateSuccess
	e.subState = SubNone
	e.deadline.Disarm()
}

func (e *Engine) fail(code ErrorCode) {
	e.lastErr = code
	e.log.RecordError(int(code), code.String())
	e.atState = StateFailed
	e.subState = SubNone
	e.deadline.Disarm()
}

func (e *Engine) timeout(code ErrorCode) {
	e.lastErr = code
	e.log.RecordError(int(code), code.String())
	e.atState = StateTimedOut
	e.subState = SubNone
	e.deadline.Disarm()
}

// ---- tick ----

// Tick drains available bytes from the transport and advances the
// state machine by one step. It never blocks.
func (e *Engine) Tick() {
	now := e.clock()

	switch e.atState {
	case StatePoweredDown:
		e.tickPoweredDown()
		return
	case StateIdle, StateSuccess, StateFailed, StateTimedOut:
		return
	}

	if e.atState == StateInitting && e.initWaiting {
		e.tryAdvanceInit(e.initNextStep)
		return
	}

	if e.deadline.Armed() && e.deadline.Expired(now) {
		e.onTimeout()
		return
	}

	for {
		b, ok := e.serial.ReadByte()
		if !ok {
			return
		}
		e.onByte(b)
		if e.atState == StateIdle || e.atState == StateSuccess || e.atState == StateFailed || e.atState == StateTimedOut {
			return
		}
	}
}

func (e *Engine) tickPoweredDown() {
	if !e.serial.ModemPowered() {
		return
	}
	if e.serial.DSR() {
		// voice call in progress: defer leaving POWERED_DOWN
		return
	}
	e.atState = StateInitting
	e.subState = SubInitIMEI
	e.initStep = 0
	e.initRetries = 0
	e.runInitStep()
}

func (e *Engine) onTimeout() {
	switch e.atState {
	case StateInitting:
		e.initRetries++
		if e.initRetries > 3 {
			e.atState = StatePoweredDown
			e.log.RecordError(int(ErrRspTimedOut), "init sequence abandoned")
			return
		}
		e.runInitStep()
	case StateProgramming:
		if e.subState == SubAuxProgLine && e.auxRetryCount < maxAuxProgRetries {
			e.auxRetryCount++
			e.sendAuxProgLine(e.auxCurrentLine)
			return
		}
		e.timeout(ErrAuxEchoMismatch)
	default:
		e.timeout(ErrRspTimedOut)
	}
}

func (e *Engine) onByte(b byte) {
	switch e.atState {
	case StateInitting:
		e.initOnByte(b)
	case StateSending:
		e.sendOnByte(b)
	case StateRcving:
		e.rcvOnByte(b)
	case StateProgramming:
		e.auxOnByte(b)
	}
}
