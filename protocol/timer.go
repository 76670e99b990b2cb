package protocol

import "time"

// Deadline is a value-typed single-shot timer (spec §9: "replace the
// register/start/stop/expired handle API with value-typed deadlines").
// The zero value is disarmed.
type Deadline struct {
	at     time.Time
	armed  bool
}

// Arm sets the deadline to now+d.
func (dl *Deadline) Arm(now time.Time, d time.Duration) {
	dl.at = now.Add(d)
	dl.armed = true
}

// Disarm clears the deadline.
func (dl *Deadline) Disarm() {
	dl.armed = false
}

// Armed reports whether the deadline is currently set.
func (dl *Deadline) Armed() bool { return dl.armed }

// Expired reports whether the deadline is armed and now is at or past it.
func (dl *Deadline) Expired(now time.Time) bool {
	return dl.armed && !now.Before(dl.at)
}
