package protocol

// lineBuffer is the fixed-size line-assembly buffer from spec §3/§4.1.
// Overflow wraps the write index back to 0 and the caller is expected to
// flag MEC_RX_BUFFER_OVERFLOW and keep reading, never abort.
type lineBuffer struct {
	buf      [LineBufferSize]byte
	writeIdx int
}

func (lb *lineBuffer) reset() {
	lb.writeIdx = 0
}

// appendByte stores b, wrapping on overflow. overflow is true the byte
// that caused the wrap (the buffer is reset to empty and b becomes the
// new first byte would be simplest, but the source's contract is
// "reset write_index to 0 ... keep reading" — so an overflowing byte is
// dropped and assembly restarts clean on the next byte).
func (lb *lineBuffer) appendByte(b byte) (overflow bool) {
	if lb.writeIdx >= len(lb.buf) {
		lb.writeIdx = 0
		return true
	}
	lb.buf[lb.writeIdx] = b
	lb.writeIdx++
	return false
}

func (lb *lineBuffer) snapshot() []byte {
	out := make([]byte, lb.writeIdx)
	copy(out, lb.buf[:lb.writeIdx])
	return out
}

// lineAssembler implements the "line to EOL" mode: read bytes, and on a
// specific EOL byte (\r or \n) return the accumulated line.
type lineAssembler struct {
	lb       lineBuffer
	eol      byte
	overflow bool
}

func newLineAssembler(eol byte) *lineAssembler {
	return &lineAssembler{eol: eol}
}

// Feed returns (line, complete, overflowed). overflowed reports whether
// this call wrapped the buffer; the caller should record
// ErrRxBufferOverflow but keep going.
func (a *lineAssembler) Feed(b byte) (line []byte, complete bool, overflowed bool) {
	if b == a.eol {
		line = a.lb.snapshot()
		a.lb.reset()
		return line, true, false
	}
	if a.lb.appendByte(b) {
		return nil, false, true
	}
	return nil, false, false
}

func (a *lineAssembler) Reset() { a.lb.reset() }

// dualEOLAssembler implements the aux-board "CMD:<echo><terminator>"
// mode: search for a first terminator (':'), then restart the buffer
// and wait for a second terminator, the last byte of the expected
// echoed command.
type dualEOLAssembler struct {
	lb         lineBuffer
	phase      int // 0: searching for ':'; 1: searching for finalByte
	finalByte  byte
	firstByte  byte // the ':' search byte, broken out for clarity/testing
}

func newDualEOLAssembler(finalByte byte) *dualEOLAssembler {
	return &dualEOLAssembler{finalByte: finalByte, firstByte: ':'}
}

func (a *dualEOLAssembler) Reset() {
	a.lb.reset()
	a.phase = 0
}

// Feed returns (echo, complete, overflowed) exactly like lineAssembler,
// but the terminal condition is phase-dependent.
func (a *dualEOLAssembler) Feed(b byte) (echo []byte, complete bool, overflowed bool) {
	overflowed = a.lb.appendByte(b)
	switch a.phase {
	case 0:
		if b == a.firstByte {
			a.lb.reset()
			a.phase = 1
		}
	case 1:
		if b == a.finalByte {
			echo = a.lb.snapshot()
			a.lb.reset()
			a.phase = 0
			complete = true
		}
	}
	return echo, complete, overflowed
}
