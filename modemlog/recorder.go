// Package modemlog provides the structured log sink and the bounded,
// deduplicated ring of recent error codes that the protocol engine and
// API layer report through. Entry timestamps come from a clock that
// tests can replace with SetClock.
package modemlog

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Entry is one recorded fault, kept in the ring for later batch
// reporting (e.g. upstream over the same SBD link).
type Entry struct {
	Seq  uint64
	At   time.Time
	Code int
	Note string
}

// Clock lets tests control "now" instead of reaching for time.Now.
type Clock func() time.Time

// Recorder is the log recorder collaborator from spec §2 item 4: a
// structured text log plus a ring of recent error codes.
type Recorder struct {
	logger *log.Logger

	mu      sync.Mutex
	ring    []Entry
	next    int
	filled  bool
	seq     uint64
	clock   Clock
	pending chan postedLog // single-producer/single-consumer, drained on tick
}

type postedLog struct {
	level Level
	msg   string
	kv    []interface{}
}

// Level selects the severity of a PostAsync'd log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// New creates a Recorder with a ring of the given capacity, writing
// structured log lines to w.
func New(w io.Writer, ringCapacity int) *Recorder {
	if ringCapacity <= 0 {
		ringCapacity = 64
	}
	l := log.New(w)
	l.SetLevel(log.DebugLevel)
	l.SetReportTimestamp(true)
	return &Recorder{
		logger:  l,
		ring:    make([]Entry, ringCapacity),
		clock:   time.Now,
		pending: make(chan postedLog, 32),
	}
}

// SetLogLevel parses "debug"/"info"/"warn"/"error" (any other value
// selects Info) and applies it to the underlying logger, which New
// starts at Debug.
func (r *Recorder) SetLogLevel(level string) {
	switch level {
	case "debug":
		r.logger.SetLevel(log.DebugLevel)
	case "warn":
		r.logger.SetLevel(log.WarnLevel)
	case "error":
		r.logger.SetLevel(log.ErrorLevel)
	default:
		r.logger.SetLevel(log.InfoLevel)
	}
}

// SetClock overrides the time source; used by tests.
func (r *Recorder) SetClock(c Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

func (r *Recorder) now() time.Time {
	r.mu.Lock()
	c := r.clock
	r.mu.Unlock()
	return c()
}

// Debug, Info, Warn log structured lines immediately (tick context).
func (r *Recorder) Debug(msg string, kv ...interface{}) { r.logger.Debug(msg, kv...) }
func (r *Recorder) Info(msg string, kv ...interface{})  { r.logger.Info(msg, kv...) }
func (r *Recorder) Warn(msg string, kv ...interface{})  { r.logger.Warn(msg, kv...) }
func (r *Recorder) Error(msg string, kv ...interface{}) { r.logger.Error(msg, kv...) }

// PostAsync queues a log line from a non-tick context (the simulated
// ISR path in spec §5: "an externally owned log-record queue used by
// ISR contexts"). Drained by DrainPosted on the next tick. Non-blocking;
// drops the line if the queue is full rather than stalling the poster.
func (r *Recorder) PostAsync(level Level, msg string, kv ...interface{}) {
	select {
	case r.pending <- postedLog{level: level, msg: msg, kv: kv}:
	default:
	}
}

// DrainPosted flushes anything queued via PostAsync. Call once per tick.
func (r *Recorder) DrainPosted() {
	for {
		select {
		case p := <-r.pending:
			switch p.level {
			case LevelDebug:
				r.Debug(p.msg, p.kv...)
			case LevelWarn:
				r.Warn(p.msg, p.kv...)
			case LevelError:
				r.Error(p.msg, p.kv...)
			default:
				r.Info(p.msg, p.kv...)
			}
		default:
			return
		}
	}
}

// RecordError appends an error code to the ring, deduplicating an
// immediate repeat of the same code (ModemLog.c collapses runs of the
// identical fault rather than flooding the ring).
func (r *Recorder) RecordError(code int, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled || r.next > 0 {
		last := r.lastLocked()
		if last != nil && last.Code == code {
			return
		}
	}

	r.seq++
	e := Entry{Seq: r.seq, At: r.clock(), Code: code, Note: note}
	r.ring[r.next] = e
	r.next++
	if r.next >= len(r.ring) {
		r.next = 0
		r.filled = true
	}
}

func (r *Recorder) lastLocked() *Entry {
	if !r.filled && r.next == 0 {
		return nil
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.ring) - 1
	}
	e := r.ring[idx]
	return &e
}

// Recent returns the ring's entries oldest-first.
func (r *Recorder) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]Entry, r.next)
		copy(out, r.ring[:r.next])
		return out
	}
	out := make([]Entry, len(r.ring))
	copy(out, r.ring[r.next:])
	copy(out[len(r.ring)-r.next:], r.ring[:r.next])
	return out
}
