package protocol

import "strings"

func (e *Engine) sendOnByte(b byte) {
	line, complete, overflow := e.lineAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "send line overflow")
		return
	}
	if !complete {
		return
	}
	s := trimCR(line)
	if s == "" {
		return
	}

	switch e.subState {
	case SubWaitReady:
		if strings.TrimSpace(s) == "READY" {
			e.pushPayload()
		}
	case SubPushPayload:
		e.handleSBDWBResult(s)
	case SubWaitTrailingOK:
		if isFinalResultLine(line) {
			e.issueSBDIX()
		}
	case SubWaitSBDD0Result:
		if isFinalResultLine(line) {
			e.issueSBDIXA()
		}
	case SubWaitSBDIXResult:
		e.handleSBDIXLine(line, s)
	case SubWaitSBDSX:
		e.handleSBDSXLine(line, s)
	case SubWaitCSQ:
		e.handleCSQLine(line, s)
	case SubWaitCLCC:
		e.handleCLCCLine(line, s)
	case SubWaitCREG:
		e.handleCREGLine(line, s)
	case SubWaitHangupOK:
		if isFinalResultLine(line) {
			e.succeed()
		}
	}
}

func (e *Engine) pushPayload() {
	frame := buildSBDWBFrame(e.pendingPayload)
	if _, err := e.serial.Write(frame); err != nil {
		e.fail(ErrTxBinDataTimeout)
		return
	}
	e.subState = SubPushPayload
	e.lineAsm.Reset()
	e.deadline.Arm(e.clock(), e.stdTimeout)
}

func (e *Engine) handleSBDWBResult(s string) {
	if len(s) == 0 {
		return
	}
	code := parseSBDWBResult(s[0])
	errCode, ok := sbdwbResultError(code)
	if !ok {
		e.fail(errCode)
		return
	}
	e.subState = SubWaitTrailingOK
	e.lineAsm.Reset()
	e.deadline.Arm(e.clock(), e.stdTimeout)
}

func (e *Engine) issueSBDIX() {
	e.subState = SubWaitSBDIXResult
	e.lineAsm.Reset()
	if _, err := e.serial.Write([]byte(cmdSBDIXEmpty)); err != nil {
		e.fail(ErrRspTimedOut)
		return
	}
	e.deadline.Arm(e.clock(), e.satelliteTimeout)
}

// issueSBDIXA sends AT+SBDIXA once AT+SBDD0 has cleared the MO
// buffer, completing CheckMailbox's sub-state chain.
func (e *Engine) issueSBDIXA() {
	e.subState = SubWaitSBDIXResult
	e.lineAsm.Reset()
	if _, err := e.serial.Write([]byte(cmdSBDIXAEmpty)); err != nil {
		e.fail(ErrRspTimedOut)
		return
	}
	e.deadline.Arm(e.clock(), e.satelliteTimeout)
}

func (e *Engine) handleSBDIXLine(line []byte, s string) {
	if r, ok := parseSBDIX(line); ok {
		e.sbdix = r
		e.info.MOMSN = itoa(r.momsn)
		e.info.MTMSN = itoa(r.mtmsn)
		e.info.MTLength = r.mtLength
		e.info.MTQueueNbr = r.mtQueued
		if r.mtStatus == 1 {
			e.info.MTStatus = MTSuccess
		}
		return
	}
	if isFinalResultLine(line) {
		code, ok := sbdixErrorFor(e.sbdix.moStatus)
		if ok {
			e.succeed()
		} else {
			e.fail(code)
		}
		return
	}
	_ = s
}

func (e *Engine) handleSBDSXLine(line []byte, s string) {
	if r, ok := parseSBDSX(line); ok {
		e.info.RAFlag = r.raFlag
		e.info.MOMSN = itoa(r.momsn)
		e.info.MTMSN = itoa(r.mtmsn)
		if e.info.MTQueueNbr == 0 {
			e.info.MTQueueNbr = r.mtQueued
		}
		return
	}
	if isFinalResultLine(line) {
		if e.info.RAFlag == 1 || e.info.MTQueueNbr != 0 {
			e.succeed()
		} else {
			e.fail(ErrRxNoMsgWaiting)
		}
		return
	}
	_ = s
}

func (e *Engine) handleCSQLine(line []byte, s string) {
	if level, ok := parseCSQ(line); ok {
		e.info.SignalStrength = level
		if level == 0 {
			e.lastErr = ErrCSQNoService
		}
		return
	}
	if isFinalResultLine(line) {
		if trimCR(line) != "0" || e.info.SignalStrength < 0 {
			e.fail(ErrCSQPollFailed)
			return
		}
		if e.info.SignalStrength == 0 {
			e.fail(ErrCSQNoService)
			return
		}
		e.succeed()
		return
	}
	_ = s
}

func (e *Engine) handleCLCCLine(line []byte, s string) {
	if r, ok := parseCLCC(line); ok && r.valid {
		e.info.CallStatus = clccStat2CallStatus(r.stat)
		return
	}
	if isFinalResultLine(line) {
		e.succeed()
		return
	}
	_ = s
}

func (e *Engine) handleCREGLine(line []byte, s string) {
	if stat, ok := parseCREG(line); ok {
		e.cregErr = creg2ErrorCode(stat)
		return
	}
	if isFinalResultLine(line) {
		if e.cregErr != ErrNone && e.cregErr != ErrCRegHome && e.cregErr != ErrCRegRoaming {
			e.fail(e.cregErr)
			return
		}
		e.succeed()
		return
	}
	_ = s
}
