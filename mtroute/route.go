// Package mtroute classifies a downloaded MT (mobile-terminated)
// message by its 16-bit type and decides what the driver does with
// the payload: run a system action, forward it out the RS422 port 3
// relay, or save it to a device-specific directory (spec §4.3).
package mtroute

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Device names each TYPE_RANGE block of MT types.
type Device int

const (
	DeviceModem Device = iota
	DeviceRS422Port2
	DeviceRS422Port3
	DeviceELA
	DeviceCompress
	DeviceDecomp
	DeviceFirmware
	DeviceSystem
	DeviceRoot

	deviceCount
)

func (d Device) String() string {
	switch d {
	case DeviceModem:
		return "modem"
	case DeviceRS422Port2:
		return "rs422-2"
	case DeviceRS422Port3:
		return "rs422-3"
	case DeviceELA:
		return "ela"
	case DeviceCompress:
		return "compress"
	case DeviceDecomp:
		return "decomp"
	case DeviceFirmware:
		return "firmware"
	case DeviceSystem:
		return "system"
	case DeviceRoot:
		return "root"
	default:
		return "unknown"
	}
}

// TypeRange is the width of the MT-type block assigned to each device
// (spec §4.3: "TYPE_RANGE=0x0020 blocks").
const TypeRange = 0x0020

func deviceFor(mtType uint16) (dev Device, sub uint16, ok bool) {
	idx := int(mtType) / TypeRange
	if idx < 0 || idx >= int(deviceCount) {
		return 0, 0, false
	}
	return Device(idx), mtType % TypeRange, true
}

// Outcome is what the caller should do with the payload once Route
// returns.
type Outcome int

const (
	// OutcomeBufferOnly means the payload was consumed in place (a
	// system action ran, or the block has no file sink) — nothing
	// further to persist.
	OutcomeBufferOnly Outcome = iota
	// OutcomeSaveToFile means write payload to the returned path.
	OutcomeSaveToFile
	// OutcomeCopyPort3 means forward payload out the RS422 port 3 UART.
	OutcomeCopyPort3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBufferOnly:
		return "BUFFER_ONLY"
	case OutcomeSaveToFile:
		return "SAVE_TO_FILE"
	case OutcomeCopyPort3:
		return "COPY_PORT3"
	default:
		return "UNKNOWN"
	}
}

// SystemAction runs a dispatch-table entry for an MT type inside the
// SYSTEM block. sub is the type's offset within the block.
type SystemAction func(sub uint16, payload []byte) error

// NotifyFunc is called after a message is routed, so the caller can
// toggle a relay or otherwise signal downstream consumers that new
// data landed for dev.
type NotifyFunc func(dev Device)

// NotifyPolicy selects which RS422 ports arm the text-message
// indicator relay (spec §4.3 "apply the configured notification
// policy").
type NotifyPolicy int

const (
	NotifyNone NotifyPolicy = iota
	NotifyPort2
	NotifyPort3
	NotifyBoth
	NotifyEither
)

// ParseNotifyPolicy maps a configuration string to a NotifyPolicy,
// defaulting to NotifyNone on anything unrecognized.
func ParseNotifyPolicy(s string) NotifyPolicy {
	switch s {
	case "PORT_2":
		return NotifyPort2
	case "PORT_3":
		return NotifyPort3
	case "BOTH":
		return NotifyBoth
	case "EITHER":
		return NotifyEither
	default:
		return NotifyNone
	}
}

func (p NotifyPolicy) String() string {
	switch p {
	case NotifyNone:
		return "NONE"
	case NotifyPort2:
		return "PORT_2"
	case NotifyPort3:
		return "PORT_3"
	case NotifyBoth:
		return "BOTH"
	case NotifyEither:
		return "EITHER"
	default:
		return "UNKNOWN"
	}
}

// Router holds the MT type → action dispatch table and the
// filename policy for file-sink devices.
type Router struct {
	actions   map[uint16]SystemAction
	pattern   *strftime.Strftime
	saveDir   string
	notify    NotifyFunc
	indicator func(on bool)
	policy    NotifyPolicy
	pendPort2 bool
	pendPort3 bool
	clock     func() time.Time
	seq       uint64
}

// New builds a Router that saves file-sink payloads under saveDir,
// named by pattern (a strftime format string, spec §4.3 "time-sequenced
// MT filename").
func New(saveDir, pattern string, notify NotifyFunc) (*Router, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("mtroute: bad filename pattern: %w", err)
	}
	return &Router{
		actions: make(map[uint16]SystemAction),
		pattern: p,
		saveDir: saveDir,
		notify:  notify,
		clock:   time.Now,
	}, nil
}

// SetClock overrides the time source used for filenames (tests).
func (r *Router) SetClock(c func() time.Time) {
	if c != nil {
		r.clock = c
	}
}

// SetNotifyPolicy sets which RS422 ports arm the text-message
// indicator relay and re-evaluates it against the currently pending
// ports.
func (r *Router) SetNotifyPolicy(p NotifyPolicy) {
	r.policy = p
	r.updateIndicator()
}

// SetIndicator installs the callback that drives the physical
// text-message indicator relay. It does not call it; the relay is next
// driven when a route, ClearPendingRead or SetNotifyPolicy re-evaluates
// it.
func (r *Router) SetIndicator(fn func(on bool)) {
	r.indicator = fn
}

// PendingRead reports whether dev (RS422Port2 or RS422Port3) has a
// message it has not yet been told was read.
func (r *Router) PendingRead(dev Device) bool {
	switch dev {
	case DeviceRS422Port2:
		return r.pendPort2
	case DeviceRS422Port3:
		return r.pendPort3
	default:
		return false
	}
}

// ClearPendingRead clears dev's pending-read flag once the port has
// consumed its queued message, and re-evaluates the indicator relay.
func (r *Router) ClearPendingRead(dev Device) {
	switch dev {
	case DeviceRS422Port2:
		r.pendPort2 = false
	case DeviceRS422Port3:
		r.pendPort3 = false
	default:
		return
	}
	r.updateIndicator()
}

func (r *Router) markPendingRead(dev Device) {
	switch dev {
	case DeviceRS422Port2:
		r.pendPort2 = true
	case DeviceRS422Port3:
		r.pendPort3 = true
	default:
		return
	}
	r.updateIndicator()
}

func (r *Router) updateIndicator() {
	if r.indicator == nil {
		return
	}
	var on bool
	switch r.policy {
	case NotifyPort2:
		on = r.pendPort2
	case NotifyPort3:
		on = r.pendPort3
	case NotifyBoth:
		on = r.pendPort2 && r.pendPort3
	case NotifyEither:
		on = r.pendPort2 || r.pendPort3
	case NotifyNone:
		on = false
	}
	r.indicator(on)
}

// RegisterSystemAction wires a dispatch-table entry for MT type
// offset sub within the SYSTEM device block.
func (r *Router) RegisterSystemAction(sub uint16, fn SystemAction) {
	r.actions[sub] = fn
}

// Route classifies mtType and, for file-sink devices, returns the path
// the caller should write payload to. failed reports whether the
// protocol engine had already marked the download as failed earlier in
// the pipeline (e.g. a bad checksum recovered via retry): on
// SAVE_TO_FILE/COPY_PORT3 this redirects the path to the Modem/Error
// subdir regardless of what device the type maps to (spec §4.3).
func (r *Router) Route(mtType uint16, payload []byte, failed bool) (Outcome, Device, string, error) {
	dev, sub, ok := deviceFor(mtType)
	if !ok {
		return OutcomeBufferOnly, DeviceRoot, "", fmt.Errorf("mtroute: mt type %#04x out of range", mtType)
	}

	switch dev {
	case DeviceSystem:
		if action, have := r.actions[sub]; have {
			if err := action(sub, payload); err != nil {
				return OutcomeBufferOnly, dev, "", err
			}
		}
		r.fireNotify(dev)
		return OutcomeBufferOnly, dev, "", nil

	case DeviceRS422Port3:
		r.fireNotify(dev)
		r.markPendingRead(dev)
		path := ""
		if failed {
			path = r.errorPath()
		}
		return OutcomeCopyPort3, dev, path, nil

	case DeviceRoot:
		return OutcomeBufferOnly, dev, "", nil

	default:
		path, err := r.filenameFor(dev)
		if err != nil {
			return OutcomeBufferOnly, dev, "", err
		}
		if failed {
			path = r.errorPath()
		}
		r.fireNotify(dev)
		r.markPendingRead(dev)
		return OutcomeSaveToFile, dev, path, nil
	}
}

func (r *Router) fireNotify(dev Device) {
	if r.notify != nil {
		r.notify(dev)
	}
}

func (r *Router) filenameFor(dev Device) (string, error) {
	stamp, err := r.pattern.FormatString(r.clock())
	if err != nil {
		return "", fmt.Errorf("mtroute: formatting filename: %w", err)
	}
	r.seq++
	name := fmt.Sprintf("%s-%04d", stamp, r.seq%10000)
	return filepath.Join(r.saveDir, dev.String(), name), nil
}

// errorPath names a file under the Modem/Error subdir for a message
// the engine had already marked failed (spec §4.3 error-subdir
// redirect). Errors formatting the timestamp fall back to a fixed
// stamp rather than losing the message.
func (r *Router) errorPath() string {
	stamp, err := r.pattern.FormatString(r.clock())
	if err != nil {
		stamp = "error"
	}
	r.seq++
	name := fmt.Sprintf("%s-%04d", stamp, r.seq%10000)
	return filepath.Join(r.saveDir, "Modem", "Error", name)
}
