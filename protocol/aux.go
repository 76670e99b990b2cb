package protocol

// auxProgOutcome classifies a single status byte the aux board sends
// back while streaming a flash programming line (spec §4.1 "Aux
// programming sub-protocol").
type auxProgOutcome int

const (
	auxProgContinue    auxProgOutcome = iota // 'a': block passed, a second confirmation byte follows
	auxProgRetryLine                         // 'N'/'n'/'F': cancel, rewind, and restart the handshake
	auxProgTerminalFail                      // 'M'/'O'/'E'/'e'/'H': unrecoverable, abort programming
	auxProgSuccess                           // 'C': final line acknowledged, programming complete
)

// classifyAuxProgByte maps a raw status byte to its outcome. Any byte
// outside the known alphabet is treated as a terminal failure rather
// than silently continuing.
func classifyAuxProgByte(b byte) auxProgOutcome {
	switch b {
	case 'a':
		return auxProgContinue
	case 'C':
		return auxProgSuccess
	case 'N', 'n', 'F':
		return auxProgRetryLine
	case 'M', 'O', 'E', 'e', 'H':
		return auxProgTerminalFail
	default:
		return auxProgTerminalFail
	}
}

func auxProgFailureError(b byte) ErrorCode {
	switch b {
	case 'M':
		return ErrAuxProgManufacturer
	case 'O':
		return ErrAuxProgFlash
	case 'E', 'e':
		return ErrAuxProgErase
	case 'H':
		return ErrAuxProgHWID
	default:
		return ErrAuxProgProgram
	}
}

// NextConfigLineFunc supplies the next flash programming line to send
// to the aux board, or ok=false when the source is exhausted. It is
// implemented by whatever collaborator owns the firmware/config image
// (outside this package).
type NextConfigLineFunc func() (line []byte, ok bool)

// maxAuxProgRetries bounds how many times a single line is resent
// after a recoverable N/n/F before the engine gives up and reports a
// terminal failure — the wire protocol has no retry counter of its
// own, so one is enforced here to guarantee progress.
const maxAuxProgRetries = 3
