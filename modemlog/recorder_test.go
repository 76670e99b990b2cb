package modemlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordErrorDeduplicatesImmediateRepeat(t *testing.T) {
	r := New(&bytes.Buffer{}, 4)

	r.RecordError(7, "first")
	r.RecordError(7, "second") // same code back to back, collapsed
	r.RecordError(8, "third")

	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, 7, recent[0].Code)
	assert.Equal(t, 8, recent[1].Code)
}

func TestRecordErrorWrapsRingOnOverflow(t *testing.T) {
	r := New(&bytes.Buffer{}, 2)

	r.RecordError(1, "a")
	r.RecordError(2, "b")
	r.RecordError(3, "c") // wraps, overwriting the first entry

	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Code)
	assert.Equal(t, 3, recent[1].Code)
}

func TestSetClockIsUsedForEntries(t *testing.T) {
	r := New(&bytes.Buffer{}, 4)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })

	r.RecordError(1, "a")

	recent := r.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, fixed, recent[0].At)
}

func TestDrainPostedFlushesQueuedLines(t *testing.T) {
	buf := &bytes.Buffer{}
	r := New(buf, 4)

	r.PostAsync(LevelError, "posted from isr", "code", 42)
	r.DrainPosted()

	assert.Contains(t, buf.String(), "posted from isr")
}
