// Package devicewatch supplements spec.md: it is not one of the named
// modules, but upgrades the teacher's kissserial.go polling loop
// ("wait for the device node to appear, os.Stat every N seconds") to
// event-driven detection via udev, for use before the first Open of the
// shared UART and after a power cycle.
package devicewatch

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Watcher waits for a tty device node to appear under udev.
type Watcher struct {
	u udev.Udev
}

// New creates a Watcher.
func New() *Watcher {
	return &Watcher{u: udev.Udev{}}
}

// Present reports whether devnode already exists according to a udev
// enumeration of the tty subsystem.
func (w *Watcher) Present(devnode string) (bool, error) {
	e := w.u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return false, fmt.Errorf("devicewatch: enumerate tty: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return false, fmt.Errorf("devicewatch: list tty devices: %w", err)
	}
	for _, d := range devices {
		if d.Devnode() == devnode {
			return true, nil
		}
	}
	return false, nil
}

// WaitFor blocks until devnode appears (an "add" udev event for it) or
// ctx is cancelled. If the device is already present it returns
// immediately. This replaces the teacher's SLEEP_SEC/os.Stat poll loop
// with a real udev monitor subscription.
func (w *Watcher) WaitFor(ctx context.Context, devnode string) error {
	present, err := w.Present(devnode)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	m := w.u.NewMonitorFromNetlink("udev")
	if err := m.FilterAddMatchSubsystem("tty"); err != nil {
		return fmt.Errorf("devicewatch: filter monitor: %w", err)
	}

	deviceCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return fmt.Errorf("devicewatch: start monitor: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("devicewatch: monitor error: %w", err)
			}
		case d := <-deviceCh:
			if d == nil {
				continue
			}
			if d.Action() == "add" && d.Devnode() == devnode {
				return nil
			}
		}
	}
}
