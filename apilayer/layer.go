// Package apilayer is the upper of the two cooperative state machines
// (spec §4.2): it drives a protocol.Engine through one operation at a
// time — outbound files, scheduled polls, queued aux commands — and
// turns each terminal outcome into filesystem/dispatch side effects.
package apilayer

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"time"

	"github.com/sbdlink/moduart/driverconfig"
	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/mtroute"
	"github.com/sbdlink/moduart/outbox"
	"github.com/sbdlink/moduart/protocol"
)

// WorkflowState mirrors the engine's coarse state for callers that
// only care about the four-way split (spec §4.2 "modem_state").
type WorkflowState int

const (
	WFPoweredDown WorkflowState = iota
	WFInitting
	WFIdle
	WFBusy
)

func (s WorkflowState) String() string {
	switch s {
	case WFPoweredDown:
		return "POWERED_DOWN"
	case WFInitting:
		return "INITTING"
	case WFIdle:
		return "IDLE"
	case WFBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

type opKind int

const (
	opNone opKind = iota
	opTxFile
	opRxFile
	opMailboxCheck
	opGatewayCheck
	opGettingCSQ
	opCallStatus
	opCallHangup
	opAuxCmd
	opDownloadAuxConfig
	opProgramAuxConfig
	opRingAlertCheck
)

type auxQueueItem struct {
	cmd      protocol.AuxCommand
	relayIdx int
	on       bool
	next     protocol.NextConfigLineFunc
	cfgBuf   *[]byte
}

// CmdResponseState is the per-command slot in the aux queue's
// response[cmd] table (spec §4.2 "aux-command queue"): WAITING from
// admission until the command's terminal outcome sets CmdSucceeded or
// CmdFailed. A command can be re-admitted once it has left the queue,
// and one that fails to start is reset to CmdNone.
type CmdResponseState int

const (
	CmdNone CmdResponseState = iota
	CmdWaiting
	CmdSucceeded
	CmdFailed
)

// Layer is the API-layer workflow state machine.
type Layer struct {
	eng    *protocol.Engine
	cfg    *driverconfig.Config
	ob     *outbox.Outbox
	router *mtroute.Router
	log    *modemlog.Recorder
	clock  func() time.Time

	port3 io.Writer // RS422 port 3 forwarding target for COPY_PORT3 outcomes

	state     WorkflowState
	currentOp opKind
	currentFile string
	currentAuxCmd protocol.AuxCommand

	auxQueue    []auxQueueItem
	auxQueued   map[protocol.AuxCommand]bool
	cmdResponse map[protocol.AuxCommand]CmdResponseState

	wantReadBinary   bool
	wantMailboxCheck bool

	consecutiveTimeouts   int
	fileSendRetryCount    int
	fileReceiveRetryCount int
	fileReceiveHadFailure bool
	csqDebounceCount      int

	// transparentMode/sendingEnabled/pcmciaErrorPending mirror the
	// original driver's top-level mode flags (spec §4.2): transparent
	// mode suppresses the protocol workflow in favor of raw pass-through,
	// sendingEnabled gates whether the outbound file queue is drained at
	// all, and pcmciaErrorPending latches a flash-card fault until
	// ClearPCMCIAError; nothing in this package sets it or gates an
	// operation on it.
	transparentMode    bool
	sendingEnabled     bool
	pcmciaErrorPending bool

	lastDSR bool
	lastRI  bool

	checkCSQTimer          protocol.Deadline
	checkGatewayTimer      protocol.Deadline
	checkCallStatusTimer   protocol.Deadline
	retryDelayTimer        protocol.Deadline
	waitForCallsTimer      protocol.Deadline
	timeoutEscalationTimer protocol.Deadline
	ringAlertTimer         protocol.Deadline
}

// New builds a Layer wired to eng and its filesystem/routing
// collaborators.
func New(eng *protocol.Engine, cfg *driverconfig.Config, ob *outbox.Outbox, router *mtroute.Router, rec *modemlog.Recorder, clock func() time.Time, port3 io.Writer) *Layer {
	if clock == nil {
		clock = time.Now
	}
	l := &Layer{
		eng:           eng,
		cfg:           cfg,
		ob:            ob,
		router:        router,
		log:           rec,
		clock:         clock,
		port3:         port3,
		state:         WFPoweredDown,
		sendingEnabled: true,
		auxQueued:     make(map[protocol.AuxCommand]bool),
		cmdResponse:   make(map[protocol.AuxCommand]CmdResponseState),
	}
	now := clock()
	l.checkCSQTimer.Arm(now, time.Duration(cfg.CheckCSQIntervalSec)*time.Second)
	l.checkGatewayTimer.Arm(now, time.Duration(cfg.CheckGatewayIntervalSec)*time.Second)
	l.checkCallStatusTimer.Arm(now, time.Duration(cfg.CheckCallStatusInterval)*time.Second)
	l.ringAlertTimer.Arm(now, time.Duration(cfg.RingAlertIntervalSec)*time.Second)
	if router != nil {
		router.SetNotifyPolicy(mtroute.ParseNotifyPolicy(cfg.NotificationMode))
		router.SetIndicator(func(on bool) { l.EnqueueSetRelay(cfg.IndicatorRelayIdx, on) })
	}
	return l
}

// SetSendingEnabled toggles whether the outbound file queue is drained
// (spec §4.2 "sending_enabled"). Disabling it leaves queued files in
// place and every other operation (polls, aux commands, MT downloads)
// unaffected.
func (l *Layer) SetSendingEnabled(on bool) { l.sendingEnabled = on }

// SetTransparentMode toggles pass-through mode (spec §4.2
// "transparent_mode"): while on, dispatchNext stops starting new
// protocol-engine operations so an external caller can drive the
// modem directly over the same serial port.
func (l *Layer) SetTransparentMode(on bool) { l.transparentMode = on }

// PCMCIAErrorPending reports whether a flash-card fault is latched
// (spec §4.2 "pcmcia_error_pending"). It is set only through
// SetPCMCIAErrorPending and cleared by ClearPCMCIAError.
func (l *Layer) PCMCIAErrorPending() bool { return l.pcmciaErrorPending }

func (l *Layer) SetPCMCIAErrorPending()   { l.pcmciaErrorPending = true }
func (l *Layer) ClearPCMCIAError()        { l.pcmciaErrorPending = false }

// CommandResponse reports the aux queue's response[cmd] slot for cmd
// (spec §4.2 "aux-command queue" state table).
func (l *Layer) CommandResponse(cmd protocol.AuxCommand) CmdResponseState {
	return l.cmdResponse[cmd]
}

func (l *Layer) State() WorkflowState { return l.state }

// Tick advances the engine by one step and then runs the workflow
// dispatch/cleanup logic. Never blocks.
func (l *Layer) Tick() {
	l.eng.Tick()
	now := l.clock()
	l.logHookRingEdges()

	switch l.eng.ATState() {
	case protocol.StatePoweredDown:
		l.state = WFPoweredDown
		l.consecutiveTimeouts = 0
		// the aux board is powered independently of the modem, so its
		// queue still drains here (spec §4.2 POWERED_DOWN case); every
		// other background timer stays stopped.
		l.dispatchNext(now)
		return
	case protocol.StateInitting:
		l.state = WFInitting
		return
	case protocol.StateSuccess, protocol.StateFailed, protocol.StateTimedOut:
		l.cleanUpOnIdle(l.eng.ATState())
		l.eng.SetIdle()
		l.currentOp = opNone
		l.state = WFIdle
	case protocol.StateIdle:
		l.state = WFIdle
	default:
		l.state = WFBusy
		return
	}

	l.handleTimeouts(now)
	if l.state == WFIdle {
		l.dispatchNext(now)
	}
}

// logHookRingEdges logs transitions on the modem's DSR (off-hook) and
// RI (ring) control lines (spec §6 control-line semantics). It never
// drives behavior itself — dispatchNext consults DSR directly before
// starting SendCallStatus — this just gives an operator a record of
// when a voice call started/ended and when the phone rang.
func (l *Layer) logHookRingEdges() {
	dsr := l.eng.DSR()
	if dsr != l.lastDSR {
		if dsr {
			l.log.Info("phone off-hook")
		} else {
			l.log.Info("phone back on-hook")
		}
		l.lastDSR = dsr
	}
	ri := l.eng.RI()
	if ri != l.lastRI {
		if ri {
			l.log.Info("incoming call ringing")
		}
		l.lastRI = ri
	}
}

// handleTimeouts escalates repeated TIMED_OUT outcomes into an engine
// Reset: once 3 consecutive timeouts have been seen and the escalation
// timer (TimeoutEscalationSec, armed at the first of them) has expired,
// the engine drops back to POWERED_DOWN and re-runs its init sequence.
// No power line is toggled.
func (l *Layer) handleTimeouts(now time.Time) {
	if l.consecutiveTimeouts == 0 {
		return
	}
	threshold := 3
	if !l.timeoutEscalationTimer.Armed() {
		l.timeoutEscalationTimer.Arm(now, time.Duration(l.cfg.TimeoutEscalationSec)*time.Second)
		return
	}
	if l.consecutiveTimeouts >= threshold && l.timeoutEscalationTimer.Expired(now) {
		l.log.Warn("escalating repeated timeouts to modem reset", "count", l.consecutiveTimeouts)
		l.eng.Reset()
		l.consecutiveTimeouts = 0
		l.timeoutEscalationTimer.Disarm()
	}
}

// cleanUpOnIdle runs the per-command-outcome handling for whatever
// operation just reached a terminal state.
func (l *Layer) cleanUpOnIdle(outcome protocol.ATState) {
	succeeded := outcome == protocol.StateSuccess
	if outcome == protocol.StateTimedOut {
		l.consecutiveTimeouts++
	} else {
		l.consecutiveTimeouts = 0
	}

	switch l.currentOp {
	case opTxFile:
		l.cleanUpTxFile(succeeded)

	case opRxFile:
		l.cleanUpRxFile(succeeded)

	case opMailboxCheck, opGatewayCheck:
		if succeeded && l.eng.MTLength() > 0 {
			l.wantReadBinary = true
		}

	case opGettingCSQ:
		l.cleanUpCSQ(succeeded)

	case opRingAlertCheck:
		if succeeded && l.eng.RingAlertPending() {
			l.wantMailboxCheck = true
		}

	case opCallHangup:
		l.waitForCallsTimer.Arm(l.clock(), time.Duration(l.cfg.WaitForCallsSec)*time.Second)

	case opAuxCmd, opDownloadAuxConfig, opProgramAuxConfig:
		if l.currentAuxCmd != protocol.AuxNone {
			if succeeded {
				l.cmdResponse[l.currentAuxCmd] = CmdSucceeded
			} else {
				l.cmdResponse[l.currentAuxCmd] = CmdFailed
			}
			l.currentAuxCmd = protocol.AuxNone
		}
	}
}

// cleanUpTxFile runs the TXING_FILE retry/error-subdir policy (spec
// §4.2 "file_send_retry_count"/"msg_max_retries"): a failed or timed
// out send is retried up to msg_max_retries times before the file is
// moved to the outbox's error subdir and the driver backs off waiting
// for incoming calls.
func (l *Layer) cleanUpTxFile(succeeded bool) {
	if l.currentFile == "" {
		return
	}
	if succeeded {
		l.fileSendRetryCount = 0
		if err := l.ob.Dispose(l.currentFile, true); err != nil {
			l.log.Error("disposing outbound file", "file", l.currentFile, "err", err)
		}
		l.currentFile = ""
		return
	}

	l.fileSendRetryCount++
	if l.fileSendRetryCount < l.cfg.MsgMaxRetries {
		l.retryDelayTimer.Arm(l.clock(), time.Duration(l.cfg.RetryDelaySec)*time.Second)
		return
	}

	l.log.Warn("file send exhausted retries, moving to error subdir", "file", l.currentFile, "retries", l.fileSendRetryCount)
	errDir := filepath.Join(l.cfg.OutboxDir, "Error")
	if err := outbox.MoveToError(l.currentFile, errDir); err != nil {
		l.log.Error("moving failed outbound file", "file", l.currentFile, "err", err)
	}
	l.fileSendRetryCount = 0
	l.currentFile = ""
	l.waitForCallsTimer.Arm(l.clock(), time.Duration(l.cfg.WaitForCallsSec)*time.Second)
}

// cleanUpRxFile runs the RXING_FILE retry policy (spec §4.2
// "file_receive_retry_count") and, once a download finally succeeds,
// routes it — flagging it as failed for mtroute's error-subdir
// redirect if an earlier attempt in this same pipeline had failed.
func (l *Layer) cleanUpRxFile(succeeded bool) {
	if succeeded {
		l.routeDownloadedPayload(l.fileReceiveHadFailure)
		l.fileReceiveHadFailure = false
		l.fileReceiveRetryCount = 0
		return
	}

	l.fileReceiveHadFailure = true
	l.fileReceiveRetryCount++
	if l.fileReceiveRetryCount < l.cfg.FileReceiveMaxRetries {
		l.wantReadBinary = true
		return
	}
	l.log.Warn("giving up on MT download after repeated failures", "retries", l.fileReceiveRetryCount)
	l.fileReceiveRetryCount = 0
	l.fileReceiveHadFailure = false
}

// cleanUpCSQ runs the CSQ debounce (spec §4.2 "csq_debounce_count"):
// a failed poll is retried at csq_retry_delay up to csq_max_retries
// before the cached signal strength is cleared and an Iridium error
// logged, rather than leaving a stale reading in place forever.
func (l *Layer) cleanUpCSQ(succeeded bool) {
	if succeeded {
		l.csqDebounceCount = 0
		return
	}
	l.csqDebounceCount++
	if l.csqDebounceCount < l.cfg.CSQMaxRetries {
		l.checkCSQTimer.Arm(l.clock(), time.Duration(l.cfg.CSQRetryDelaySec)*time.Second)
		return
	}
	l.eng.ClearSignalStrength()
	l.log.RecordError(int(protocol.ErrCSQPollFailed), "CSQ poll failed repeatedly")
	l.csqDebounceCount = 0
}

// routeDownloadedPayload classifies the just-downloaded MT payload by
// its leading 16-bit type tag and acts on mtroute's verdict. failed
// reports whether the engine had marked an earlier attempt at this
// same download as failed, so mtroute can redirect a SAVE_TO_FILE/
// COPY_PORT3 outcome to the Modem/Error subdir (spec §4.3).
func (l *Layer) routeDownloadedPayload(failed bool) {
	payload := l.eng.DownloadedPayload()
	if len(payload) < 2 || l.router == nil {
		return
	}
	mtType := binary.BigEndian.Uint16(payload[:2])
	body := payload[2:]

	outcome, dev, path, err := l.router.Route(mtType, body, failed)
	if err != nil {
		l.log.Error("routing MT payload", "mtType", mtType, "err", err)
		return
	}
	switch outcome {
	case mtroute.OutcomeSaveToFile:
		if err := outbox.SaveMT(path, body); err != nil {
			l.log.Error("saving MT payload", "path", path, "err", err)
		}
	case mtroute.OutcomeCopyPort3:
		if path != "" {
			if err := outbox.SaveMT(path, body); err != nil {
				l.log.Error("saving failed MT payload", "path", path, "err", err)
			}
			return
		}
		if l.port3 != nil {
			if _, err := l.port3.Write(body); err != nil {
				l.log.Error("forwarding MT payload to port3", "err", err)
			}
		}
	case mtroute.OutcomeBufferOnly:
		l.log.Debug("MT payload consumed in place", "device", dev.String())
	}
}

// dispatchNext starts the next operation, in priority order: queued
// aux commands (drained even while waitForCallsTimer is armed — spec
// §4.2's POWERED_DOWN case requires the aux queue to keep draining
// while background timers stay stopped), a pending MT download,
// scheduled polls, then the outbound file queue. Nothing is started
// while transparent mode is on.
func (l *Layer) dispatchNext(now time.Time) {
	if l.transparentMode {
		return
	}

	if len(l.auxQueue) > 0 {
		l.startNextAuxCommand()
		return
	}

	if l.waitForCallsTimer.Armed() && !l.waitForCallsTimer.Expired(now) {
		return
	}
	l.waitForCallsTimer.Disarm()

	if l.wantMailboxCheck {
		if l.eng.CheckMailbox() {
			l.wantMailboxCheck = false
			l.currentOp = opMailboxCheck
		}
		return
	}

	if l.wantReadBinary {
		if l.eng.ReadBinary() {
			l.wantReadBinary = false
			l.currentOp = opRxFile
		}
		return
	}

	if l.checkCallStatusTimer.Expired(now) {
		if l.eng.DSR() {
			l.log.Debug("skip sending call status, phone off-hook")
		} else if l.eng.SendCallStatus() {
			l.currentOp = opCallStatus
			l.checkCallStatusTimer.Arm(now, time.Duration(l.cfg.CheckCallStatusInterval)*time.Second)
		}
		return
	}

	if l.checkCSQTimer.Expired(now) {
		if l.eng.SendCSQ() {
			l.currentOp = opGettingCSQ
			l.checkCSQTimer.Arm(now, time.Duration(l.cfg.CheckCSQIntervalSec)*time.Second)
		}
		return
	}

	if l.ringAlertTimer.Expired(now) {
		if l.eng.CheckRingAlert() {
			l.currentOp = opRingAlertCheck
			l.ringAlertTimer.Arm(now, time.Duration(l.cfg.RingAlertIntervalSec)*time.Second)
		}
		return
	}

	if l.checkGatewayTimer.Expired(now) {
		if l.eng.CheckGateway() {
			l.currentOp = opGatewayCheck
			l.checkGatewayTimer.Arm(now, time.Duration(l.cfg.CheckGatewayIntervalSec)*time.Second)
		}
		return
	}

	if l.retryDelayTimer.Armed() && !l.retryDelayTimer.Expired(now) {
		return
	}
	l.retryDelayTimer.Disarm()

	if l.ob != nil && l.sendingEnabled {
		path, data, ok, err := l.ob.Next()
		if err != nil {
			l.log.Error("scanning outbox", "err", err)
			return
		}
		if ok && l.eng.SendBinaryBuffer(data) {
			l.currentFile = path
			l.currentOp = opTxFile
		}
	}
}

// ---- aux command queue (spec §4.2: bounded, capacity 10, duplicate-suppressed) ----

func (l *Layer) EnqueueSetRelay(idx int, on bool) bool {
	cmd := protocol.AuxSetRelay1On
	if idx == 1 {
		cmd = protocol.AuxSetRelay2On
	}
	if !on {
		cmd = protocol.AuxSetRelay1Off
		if idx == 1 {
			cmd = protocol.AuxSetRelay2Off
		}
	}
	return l.enqueueAux(auxQueueItem{cmd: cmd, relayIdx: idx, on: on})
}

func (l *Layer) EnqueueGetRelayStatus(idx int) bool {
	cmd := protocol.AuxGetRelay1Status
	if idx == 1 {
		cmd = protocol.AuxGetRelay2Status
	}
	return l.enqueueAux(auxQueueItem{cmd: cmd, relayIdx: idx})
}

func (l *Layer) EnqueueSetRinger(on bool) bool {
	cmd := protocol.AuxSetRingerOn
	if !on {
		cmd = protocol.AuxSetRingerOff
	}
	return l.enqueueAux(auxQueueItem{cmd: cmd, on: on})
}

func (l *Layer) EnqueueGetRingerStatus() bool {
	return l.enqueueAux(auxQueueItem{cmd: protocol.AuxGetRingerStatus})
}

func (l *Layer) EnqueueResetAux() bool {
	return l.enqueueAux(auxQueueItem{cmd: protocol.AuxResetBoard})
}

func (l *Layer) EnqueueDownloadAuxConfig(buf *[]byte) bool {
	return l.enqueueAux(auxQueueItem{cmd: protocol.AuxDownloadConfig, cfgBuf: buf})
}

func (l *Layer) EnqueueProgramAux(next protocol.NextConfigLineFunc) bool {
	return l.enqueueAux(auxQueueItem{cmd: protocol.AuxProgram, next: next})
}

func (l *Layer) enqueueAux(item auxQueueItem) bool {
	if l.auxQueued[item.cmd] {
		return false
	}
	if len(l.auxQueue) >= l.effectiveAuxQueueDepth() {
		return false
	}
	l.auxQueue = append(l.auxQueue, item)
	l.auxQueued[item.cmd] = true
	l.cmdResponse[item.cmd] = CmdWaiting
	return true
}

func (l *Layer) effectiveAuxQueueDepth() int {
	if l.cfg != nil && l.cfg.AuxQueueDepth > 0 {
		return l.cfg.AuxQueueDepth
	}
	return protocol.MaxQueueDepth
}

func (l *Layer) startNextAuxCommand() {
	item := l.auxQueue[0]
	l.auxQueue = l.auxQueue[1:]
	l.auxQueued[item.cmd] = false

	var started bool
	l.currentAuxCmd = item.cmd
	switch item.cmd {
	case protocol.AuxSetRelay1On, protocol.AuxSetRelay1Off:
		started = l.eng.SetRelay(0, item.on)
	case protocol.AuxSetRelay2On, protocol.AuxSetRelay2Off:
		started = l.eng.SetRelay(1, item.on)
	case protocol.AuxGetRelay1Status:
		started = l.eng.GetRelayStatus(0)
	case protocol.AuxGetRelay2Status:
		started = l.eng.GetRelayStatus(1)
	case protocol.AuxSetRingerOn, protocol.AuxSetRingerOff:
		started = l.eng.SetRinger(item.on)
	case protocol.AuxGetRingerStatus:
		started = l.eng.GetRingerStatus()
	case protocol.AuxResetBoard:
		started = l.eng.ResetAux()
	case protocol.AuxDownloadConfig:
		started = l.eng.DownloadAuxConfig(item.cfgBuf)
		if started {
			l.currentOp = opDownloadAuxConfig
			return
		}
	case protocol.AuxProgram:
		started = l.eng.ProgramAux(item.next)
		if started {
			l.currentOp = opProgramAuxConfig
			return
		}
	}
	if started {
		l.currentOp = opAuxCmd
		return
	}
	// dispatchNext only calls in while idle, so a failure to start means
	// the command itself was rejected (e.g. bad relay index): drain it
	// back to NO_CMD rather than leaving it stuck at WAITING forever.
	l.cmdResponse[item.cmd] = CmdNone
	l.currentAuxCmd = protocol.AuxNone
}

// QueueDepth reports how many aux commands are currently queued.
func (l *Layer) QueueDepth() int { return len(l.auxQueue) }

// ---- direct (non-queued) operations: text/binary send is driven by
// the outbox, but callers can force an immediate gateway check. ----

// ForceCheckGateway resets the scheduled gateway-poll timer to now so
// the next idle tick runs AT+SBDIX immediately.
func (l *Layer) ForceCheckGateway() {
	l.checkGatewayTimer.Arm(l.clock(), 0)
}

// NotifyRingAlert forces an immediate AT+SBDIXA mailbox check on the
// next idle tick, bypassing the periodic AT+SBDSX poll. Exists for a
// caller with a faster way to learn the gateway has MT traffic waiting
// than this driver's own ring-alert poll (e.g. an external URC path).
func (l *Layer) NotifyRingAlert() {
	l.wantMailboxCheck = true
}
