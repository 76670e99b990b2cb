package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSBDIX(t *testing.T) {
	r, ok := parseSBDIX([]byte("+SBDIX: 0, 12, 1, 34, 120, 2\r\n"))
	assert.True(t, ok)
	assert.Equal(t, sbdixResult{moStatus: 0, momsn: 12, mtStatus: 1, mtmsn: 34, mtLength: 120, mtQueued: 2}, r)

	_, ok = parseSBDIX([]byte("garbage\r\n"))
	assert.False(t, ok)
}

func TestParseCSQ(t *testing.T) {
	level, ok := parseCSQ([]byte("+CSQF:3\r\n"))
	assert.True(t, ok)
	assert.Equal(t, 3, level)

	level, ok = parseCSQ([]byte("+CSQF:9\r\n"))
	assert.True(t, ok)
	assert.Equal(t, 5, level, "levels above 5 clamp")

	_, ok = parseCSQ([]byte("OK\r\n"))
	assert.False(t, ok)
}

func TestParseCREG(t *testing.T) {
	stat, ok := parseCREG([]byte("+CREG: 0,1\r\n"))
	assert.True(t, ok)
	assert.Equal(t, ErrCRegHome, creg2ErrorCode(stat))

	stat, ok = parseCREG([]byte("+CREG: 0,2\r\n"))
	assert.True(t, ok)
	assert.Equal(t, ErrCRegSearching, creg2ErrorCode(stat))
}

func TestParseCLCC(t *testing.T) {
	r, ok := parseCLCC([]byte("+CLCC: 1,0,0,0,0\r\n"))
	assert.True(t, ok)
	assert.Equal(t, CallActive, clccStat2CallStatus(r.stat))
}

func TestParseSBDSX(t *testing.T) {
	r, ok := parseSBDSX([]byte("+SBDSX: 1, 7, 0, 0, 1, 2\r\n"))
	assert.True(t, ok)
	assert.Equal(t, sbdsxResult{moFlag: 1, momsn: 7, mtFlag: 0, mtmsn: 0, raFlag: 1, mtQueued: 2}, r)

	_, ok = parseSBDSX([]byte("garbage\r\n"))
	assert.False(t, ok)
}

func TestSbdixErrorForSuccessRange(t *testing.T) {
	for status := 0; status <= 4; status++ {
		code, ok := sbdixErrorFor(status)
		assert.True(t, ok)
		assert.Equal(t, ErrNone, code)
	}
}

func TestSbdixErrorForKnownFaults(t *testing.T) {
	code, ok := sbdixErrorFor(32)
	assert.False(t, ok)
	assert.Equal(t, ErrSBDINoNetworkService, code)

	code, ok = sbdixErrorFor(35)
	assert.False(t, ok)
	assert.Equal(t, ErrSBDIISUBusy, code)

	code, ok = sbdixErrorFor(99)
	assert.False(t, ok)
	assert.Equal(t, ErrSBDIFail, code)
}
