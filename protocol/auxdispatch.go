package protocol

import (
	"strings"
	"time"
)

// auxDownloadTerminator is the sentinel line the aux board sends to
// mark the end of a config download stream.
const auxDownloadTerminator = "DONE"

func (e *Engine) auxOnByte(b byte) {
	switch e.subState {
	case SubAuxCmdEcho:
		e.auxCmdEchoOnByte(b)
	case SubAuxDownloadCapture:
		e.auxDownloadOnByte(b)
	case SubAuxProgVersion:
		e.auxProgVersionOnByte(b)
	case SubAuxProgBegin:
		e.auxProgBeginOnByte(b)
	case SubAuxProgLine:
		e.auxProgLineOnByte(b)
	}
}

func (e *Engine) auxCmdEchoOnByte(b byte) {
	echo, complete, overflow := e.dualAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "aux echo overflow")
		return
	}
	if !complete {
		return
	}
	switch e.auxQueryKind {
	case 1:
		e.info.RingersOn = lastDigitIsOne(echo)
	case 2:
		if lastDigitIsOne(echo) {
			e.info.RelayOn[e.auxQueryIdx] = RelayOn
		} else {
			e.info.RelayOn[e.auxQueryIdx] = RelayOff
		}
	}
	e.auxQueryKind = 0
	e.succeed()
}

func lastDigitIsOne(echo []byte) bool {
	for i := len(echo) - 1; i >= 0; i-- {
		if echo[i] == '1' {
			return true
		}
		if echo[i] == '0' {
			return false
		}
	}
	return false
}

func (e *Engine) auxDownloadOnByte(b byte) {
	line, complete, overflow := e.lineAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "aux download line overflow")
		return
	}
	if !complete {
		return
	}
	s := trimCR(line)
	if s == auxDownloadTerminator {
		e.succeed()
		return
	}
	if len(e.auxDownloadBuf)+len(line)+1 > MaxCfgDownloadSize {
		e.fail(ErrFileWriteError)
		return
	}
	e.auxDownloadBuf = append(e.auxDownloadBuf, line...)
	e.auxDownloadBuf = append(e.auxDownloadBuf, '\n')
	e.deadline.Arm(e.clock(), auxSatTimeoutSec*time.Second) // re-arm watchdog on each line
}

// AuxDownloadResult returns the accumulated config bytes once
// DownloadAuxConfig completes with ATState()==StateSuccess.
func (e *Engine) AuxDownloadResult() []byte { return e.auxDownloadBuf }

// auxProgVersionOnByte handles aux programming step 1 (spec §4.1): send
// "~" and expect the version response "20400000 1B010000" before
// issuing "reload flash".
func (e *Engine) auxProgVersionOnByte(b byte) {
	line, complete, overflow := e.lineAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "aux prog version overflow")
		return
	}
	if !complete {
		return
	}
	if strings.TrimSpace(string(line)) != auxRspVersion {
		e.fail(ErrAuxEchoMismatch)
		return
	}
	e.sendAuxReloadFlash()
}

func (e *Engine) sendAuxReloadFlash() {
	e.subState = SubAuxProgBegin
	e.dualAsm = newDualEOLAssembler('\r')
	if _, err := e.serial.Write([]byte(auxCmdReloadFlash + "\r")); err != nil {
		e.fail(ErrAuxProgProgram)
		return
	}
	e.deadline.Arm(e.clock(), auxSatTimeoutSec*time.Second)
}

func (e *Engine) auxProgBeginOnByte(b byte) {
	echo, complete, overflow := e.dualAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "aux prog begin overflow")
		return
	}
	if !complete {
		return
	}
	_ = echo
	e.fetchAndSendNextLine()
}

// fetchAndSendNextLine sends the line at auxLineIdx, pulling a new one
// from auxNextLine only once the buffer is exhausted. Buffering every
// line ever pulled lets restartAuxProgramming rewind to the start
// without re-invoking the caller's one-way iterator.
func (e *Engine) fetchAndSendNextLine() {
	if e.auxLineIdx < len(e.auxLines) {
		line := e.auxLines[e.auxLineIdx]
		e.auxLineIdx++
		e.sendAuxProgLine(line)
		return
	}
	line, ok := e.auxNextLine()
	if !ok {
		e.succeed()
		return
	}
	e.auxLines = append(e.auxLines, line)
	e.auxLineIdx++
	e.sendAuxProgLine(line)
}

// restartAuxProgramming implements the recoverable-retry path (spec
// §4.1 aux programming step 3, testable scenario §8-4): on a N/n/F
// byte, cancel the in-flight line, rewind to the first config line,
// and restart the handshake from the version check.
func (e *Engine) restartAuxProgramming() {
	e.auxLineIdx = 0
	if _, err := e.serial.Write([]byte(auxCmdCancel)); err != nil {
		e.fail(ErrAuxProgProgram)
		return
	}
	e.subState = SubAuxProgVersion
	e.lineAsm = newLineAssembler('\r')
	e.lineAsm.Reset()
	if _, err := e.serial.Write([]byte(auxCmdVersionCheck)); err != nil {
		e.fail(ErrAuxProgProgram)
		return
	}
	e.deadline.Arm(e.clock(), e.auxTimeout)
}

func (e *Engine) sendAuxProgLine(line []byte) {
	e.auxCurrentLine = line
	e.subState = SubAuxProgLine
	if _, err := e.serial.Write(line); err != nil {
		e.fail(ErrAuxProgProgram)
		return
	}
	e.deadline.Arm(e.clock(), e.auxTimeout)
}

func (e *Engine) auxProgLineOnByte(b byte) {
	if e.auxAwaitingBlockConfirm {
		e.auxAwaitingBlockConfirm = false
		if b == 'C' {
			e.succeed()
			return
		}
		e.auxRetryCount = 0
		e.fetchAndSendNextLine()
		return
	}

	switch classifyAuxProgByte(b) {
	case auxProgContinue:
		// 'a': block passed, but the board sends a second byte next —
		// 'C' means the whole transfer is done, anything else means
		// move on to the next line.
		e.auxAwaitingBlockConfirm = true
	case auxProgSuccess:
		e.succeed()
	case auxProgRetryLine:
		e.auxRetryCount++
		if e.auxRetryCount > maxAuxProgRetries {
			e.fail(ErrAuxProgProgram)
			return
		}
		e.restartAuxProgramming()
	case auxProgTerminalFail:
		e.fail(auxProgFailureError(b))
	}
}
