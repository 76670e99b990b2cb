package transport

import (
	"fmt"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

// Real is the production Serial implementation: a single UART shared by
// the modem and aux board, opened with github.com/pkg/term the same way
// the teacher's serial_port_open does, with DSR/RI read via the
// TIOCMGET ioctl the teacher's ptt.go already uses for RTS.
type Real struct {
	dev     string
	t       *term.Term
	fd      int
	routing RoutingSwitch
	power   PowerSensor
	closed  bool
}

// Open opens the shared UART at the given baud rate. routing and power
// are the board-specific collaborators (typically powerctl.GPIOLines)
// that own the port-routing bit and the power-state reads; Open does
// not know or care how they're implemented.
func Open(dev string, baud int, routing RoutingSwitch, power PowerSensor) (*Real, error) {
	t, err := term.Open(dev, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", dev, err)
	}

	fd := int(t.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		t.Close()
		return nil, fmt.Errorf("transport: set nonblocking %s: %w", dev, err)
	}

	return &Real{dev: dev, t: t, fd: fd, routing: routing, power: power}, nil
}

func (r *Real) ReadByte() (byte, bool) {
	if r.closed {
		return 0, false
	}
	var buf [1]byte
	n, err := unix.Read(r.fd, buf[:])
	if err != nil || n != 1 {
		return 0, false
	}
	return buf[0], true
}

func (r *Real) Write(p []byte) (int, error) {
	if r.closed {
		return 0, ErrNotOpen
	}
	return r.t.Write(p)
}

func (r *Real) FlushInput() error {
	if r.closed {
		return ErrNotOpen
	}
	return unix.IoctlSetInt(r.fd, unix.TCFLSH, unix.TCIFLUSH)
}

func (r *Real) FlushOutput() error {
	if r.closed {
		return ErrNotOpen
	}
	return unix.IoctlSetInt(r.fd, unix.TCFLSH, unix.TCOFLUSH)
}

func (r *Real) modemStatusBit(bit int) bool {
	if r.closed {
		return false
	}
	stuff, err := unix.IoctlGetInt(r.fd, unix.TIOCMGET)
	if err != nil {
		return false
	}
	return stuff&bit != 0
}

func (r *Real) DSR() bool { return r.modemStatusBit(unix.TIOCM_DSR) }
func (r *Real) RI() bool  { return r.modemStatusBit(unix.TIOCM_RI) }

func (r *Real) SetRoute(p PortRoute) error {
	if r.routing == nil {
		return nil
	}
	return r.routing.SetRoute(p)
}

func (r *Real) Route() PortRoute {
	if r.routing == nil {
		return DataPort
	}
	return r.routing.Route()
}

func (r *Real) AuxPowered() bool {
	if r.power == nil {
		return true
	}
	return r.power.AuxPowered()
}

func (r *Real) ModemPowered() bool {
	if r.power == nil {
		return true
	}
	return r.power.ModemPowered()
}

func (r *Real) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.t.Close()
}
