package protocol

import (
	"strconv"
	"strings"
)

// splitCSV trims a prefix like "+SBDIX:" and splits the remainder on
// commas, trimming surrounding whitespace from each field.
func splitCSV(line []byte, prefix string) ([]string, bool) {
	s := strings.TrimSpace(string(line))
	if !strings.HasPrefix(s, prefix) {
		return nil, false
	}
	s = strings.TrimSpace(s[len(prefix):])
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// sbdixResult is the parsed +SBDIX response.
type sbdixResult struct {
	moStatus   int
	momsn      int
	mtStatus   int
	mtmsn      int
	mtLength   int
	mtQueued   int
}

// parseSBDIX parses "+SBDIX: <mo_status>, <momsn>, <mt_status>, <mtmsn>,
// <mtlength>, <mtqueued>" per spec §4.1. A line with fewer than six
// fields is rejected (ok=false); a non-numeric mo_status falls back to
// an MO failure code so it never reads as success.
func parseSBDIX(line []byte) (sbdixResult, bool) {
	parts, ok := splitCSV(line, prefixSBDIX)
	if !ok || len(parts) < 6 {
		return sbdixResult{}, false
	}
	return sbdixResult{
		moStatus: atoiOr(parts[0], 32),
		momsn:    atoiOr(parts[1], 0),
		mtStatus: atoiOr(parts[2], 0),
		mtmsn:    atoiOr(parts[3], 0),
		mtLength: atoiOr(parts[4], 0),
		mtQueued: atoiOr(parts[5], 0),
	}, true
}

// sbdsxResult is the parsed +SBDSX response (ring-alert variant of
// SBDIX: no transmit attempt, just a status snapshot). Field order per
// spec §4.1 "SBDSX response parser": mo_flag, mo_msn, mt_flag, mt_msn,
// ra_flag, queued.
type sbdsxResult struct {
	moFlag   int
	momsn    int
	mtFlag   int
	mtmsn    int
	raFlag   int
	mtQueued int
}

func parseSBDSX(line []byte) (sbdsxResult, bool) {
	parts, ok := splitCSV(line, prefixSBDSX)
	if !ok || len(parts) < 6 {
		return sbdsxResult{}, false
	}
	return sbdsxResult{
		moFlag:   atoiOr(parts[0], 0),
		momsn:    atoiOr(parts[1], 0),
		mtFlag:   atoiOr(parts[2], 0),
		mtmsn:    atoiOr(parts[3], 0),
		raFlag:   atoiOr(parts[4], 0),
		mtQueued: atoiOr(parts[5], 0),
	}, true
}

// parseCSQ parses "+CSQF:<n>" and returns n clamped to [0,5]. A poll
// failure (malformed line) is reported via ok=false so the caller can
// distinguish "no signal" (level 0) from "couldn't ask" (spec §9 open
// question).
func parseCSQ(line []byte) (level int, ok bool) {
	s := strings.TrimSpace(string(line))
	if !strings.HasPrefix(s, prefixCSQ) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[len(prefixCSQ):]))
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return n, true
}

// parseCREG parses "+CREG: <n>,<stat>" and returns the registration
// status code.
func parseCREG(line []byte) (stat int, ok bool) {
	parts, ok := splitCSV(line, prefixCREG)
	if !ok || len(parts) < 2 {
		return 0, false
	}
	return atoiOr(parts[1], 4), true
}

func creg2ErrorCode(stat int) ErrorCode {
	switch stat {
	case 0:
		return ErrCRegNotRegistered
	case 1:
		return ErrCRegHome
	case 2:
		return ErrCRegSearching
	case 3:
		return ErrCRegDenied
	case 5:
		return ErrCRegRoaming
	default:
		return ErrCRegUnknown
	}
}

// clccResult is the parsed +CLCC response.
type clccResult struct {
	idx   int
	stat  int
	valid bool
}

func parseCLCC(line []byte) (clccResult, bool) {
	parts, ok := splitCSV(line, prefixCLCC)
	if !ok || len(parts) < 3 {
		return clccResult{}, false
	}
	return clccResult{
		idx:   atoiOr(parts[0], 0),
		stat:  atoiOr(parts[2], 0),
		valid: true,
	}, true
}

func clccStat2CallStatus(stat int) CallStatus {
	switch stat {
	case 0:
		return CallActive
	case 1:
		return CallHeld
	case 2:
		return CallDialing
	case 4:
		return CallIncoming
	case 5:
		return CallWaiting
	default:
		return CallInvalid
	}
}

// parseCGMRVersion extracts the software version suffix from the
// "Call Processor Version: X.Y" banner line.
func parseCGMRVersion(line []byte) (string, bool) {
	s := strings.TrimSpace(string(line))
	if !strings.HasPrefix(s, prefixCGMRVersion) {
		return "", false
	}
	v := strings.TrimSpace(s[len(prefixCGMRVersion):])
	if len(v) > ModemSWVerSize {
		v = v[:ModemSWVerSize]
	}
	return v, true
}
