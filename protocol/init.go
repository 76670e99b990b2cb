package protocol

// runInitStep (re)issues the request for the current init sub-state.
// Called both when entering INITTING and after a retry.
func (e *Engine) runInitStep() {
	e.lineAsm.Reset()
	var req string
	switch e.subState {
	case SubInitIMEI:
		req = cmdCGSN
	case SubInitDrainStray:
		// Nothing to send: wait for the stray result code after the IMEI.
		e.deadline.Arm(e.clock(), e.stdTimeout)
		return
	case SubInitMTAlert:
		req = cmdSBDMTA0
	case SubInitAutoreg:
		req = cmdSBDAREG
	case SubInitFirstSBDIX:
		req = cmdSBDIXEmpty
	case SubInitVersion:
		req = cmdCGMR
	default:
		return
	}
	if _, err := e.serial.Write([]byte(req)); err != nil {
		return
	}
	e.deadline.Arm(e.clock(), e.stdTimeout)
}

func (e *Engine) initOnByte(b byte) {
	line, complete, overflow := e.lineAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "init line overflow")
		return
	}
	if !complete {
		return
	}
	if len(line) == 0 {
		return // blank line between echo and payload
	}

	switch e.subState {
	case SubInitIMEI:
		e.info.IMEI = trimCR(line)
		e.advanceInit(SubInitDrainStray)
	case SubInitDrainStray:
		if isFinalResultLine(line) {
			e.advanceInit(SubInitMTAlert)
		}
	case SubInitMTAlert:
		if isFinalResultLine(line) {
			e.advanceInit(SubInitAutoreg)
		}
	case SubInitAutoreg:
		if isFinalResultLine(line) {
			e.advanceInit(SubInitFirstSBDIX)
		}
	case SubInitFirstSBDIX:
		if r, ok := parseSBDIX(line); ok {
			e.sbdix = r
			e.info.MOMSN = itoa(r.momsn)
		}
		if isFinalResultLine(line) {
			e.advanceInit(SubInitVersion)
		}
	case SubInitVersion:
		if v, ok := parseCGMRVersion(line); ok {
			e.info.ModemSWVersion = v
		}
		if isFinalResultLine(line) {
			e.finishInit()
		}
	}
}

// advanceInit gates the move to next on the absence of a voice call
// (spec §4.1 init sequence, testable scenario §8-6): while DSR is high
// the next command is deferred and the hook edges are logged, rather
// than firing the next step unconditionally.
func (e *Engine) advanceInit(next SubState) {
	e.initNextStep = next
	e.tryAdvanceInit(next)
}

func (e *Engine) tryAdvanceInit(next SubState) {
	if e.serial.DSR() {
		if !e.initWaiting {
			e.initWaiting = true
			e.log.Info("phone off-hook, deferring init step")
		}
		e.initNextStep = next
		return
	}
	if e.initWaiting {
		e.initWaiting = false
		e.log.Info("phone back on-hook, resuming init")
	}
	e.subState = next
	e.initRetries = 0
	e.runInitStep()
}

func (e *Engine) finishInit() {
	e.atState = StateIdle
	e.subState = SubNone
	e.deadline.Disarm()
}

// trimCR strips a single trailing \r left by the \n-anchored line
// assembler on CRLF-terminated modem responses.
func trimCR(line []byte) string {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return string(line)
}

// isFinalResultLine reports whether line is a bare numeric result code
// ("0" for OK, anything else for an error) as opposed to data/echo.
func isFinalResultLine(line []byte) bool {
	s := trimCR(line)
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
