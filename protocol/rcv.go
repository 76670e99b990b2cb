package protocol

func (e *Engine) rcvOnByte(b byte) {
	switch e.subState {
	case SubGetData:
		e.rcvDataOnByte(b)
	case SubRcvTrailingResult:
		e.rcvTrailingOnByte(b)
	}
}

// rcvDataOnByte feeds the length/payload/checksum frame. A zero length
// means the gateway had nothing queued after all (spec §8: "if L == 0
// the outcome is FAILED with MEC_RX_NO_MSG_WAITING"). A payload longer
// than MaxRxFileLen is recorded as ErrRxBadFileLength and clamped to
// MaxRxFileLen, and one longer than the mt_length a prior SBDIX/SBDIXA
// reported is clamped to that length; a shorter one is kept as is.
func (e *Engine) rcvDataOnByte(b byte) {
	complete, ok := e.binAsm.Feed(b)
	if !complete {
		return
	}
	if !ok {
		e.fail(ErrRxBadChecksum)
		return
	}
	if e.binAsm.Length() == 0 {
		e.fail(ErrRxNoMsgWaiting)
		return
	}
	if e.binAsm.Length() > MaxRxFileLen {
		e.lastErr = ErrRxBadFileLength
		e.log.RecordError(int(ErrRxBadFileLength), "MT length over limit, clamped")
		e.binAsm.payload = e.binAsm.payload[:MaxRxFileLen]
	}
	if e.info.MTLength > 0 && len(e.binAsm.payload) > e.info.MTLength {
		e.binAsm.payload = e.binAsm.payload[:e.info.MTLength]
	}
	e.subState = SubRcvTrailingResult
	e.lineAsm = newLineAssembler('\n')
	e.lineAsm.Reset()
}

// rcvTrailingOnByte consumes the trailing generic result code the wire
// sends after the checksum (spec §4.1 "consumes the trailing generic
// result code"; scenario §8-3), so it never corrupts the next command's
// line framing.
func (e *Engine) rcvTrailingOnByte(b byte) {
	line, complete, overflow := e.lineAsm.Feed(b)
	if overflow {
		e.log.RecordError(int(ErrRxBufferOverflow), "rcv trailing result overflow")
		return
	}
	if !complete {
		return
	}
	if len(line) == 0 {
		return
	}
	if !isFinalResultLine(line) {
		return
	}
	e.succeed()
}

// DownloadedPayload returns the most recently downloaded MT payload
// after ReadBinary completes with ATState()==StateSuccess.
func (e *Engine) DownloadedPayload() []byte {
	return e.binAsm.Payload()
}
