package transport

import (
	"os"
	"sync"

	"github.com/creack/pty"
)

// Harness is the Serial implementation used by protocol/API-layer
// tests: it opens a real pty pair via github.com/creack/pty so a test
// goroutine can play the modem/aux board on the other end using actual
// file descriptors, per the "test harness... feeding synthetic byte
// streams" design note in spec §9. DSR/RI and power are plain fields a
// test sets directly, since a pty doesn't carry real modem control
// lines.
type Harness struct {
	Master *os.File
	Slave  *os.File

	mu       sync.Mutex
	dsr, ri  bool
	auxPwr   bool
	modemPwr bool
	route    PortRoute
	closed   bool
}

// NewHarness opens a pty pair. The returned Harness is given to the
// code under test as a transport.Serial; Master is kept by the test so
// it can write bytes the device-under-test will read, and read bytes
// the device-under-test wrote.
func NewHarness() (*Harness, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	return &Harness{
		Master:   master,
		Slave:    slave,
		auxPwr:   true,
		modemPwr: true,
	}, nil
}

func (h *Harness) ReadByte() (byte, bool) {
	var buf [1]byte
	n, err := h.Slave.Read(buf[:])
	if err != nil || n != 1 {
		return 0, false
	}
	return buf[0], true
}

func (h *Harness) Write(p []byte) (int, error) {
	return h.Slave.Write(p)
}

func (h *Harness) FlushInput() error  { return nil }
func (h *Harness) FlushOutput() error { return nil }

func (h *Harness) DSR() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dsr
}

func (h *Harness) RI() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ri
}

// SetDSR and SetRI let a test simulate a voice call / incoming ring.
func (h *Harness) SetDSR(v bool) { h.mu.Lock(); h.dsr = v; h.mu.Unlock() }
func (h *Harness) SetRI(v bool)  { h.mu.Lock(); h.ri = v; h.mu.Unlock() }

func (h *Harness) SetRoute(p PortRoute) error {
	h.mu.Lock()
	h.route = p
	h.mu.Unlock()
	return nil
}

func (h *Harness) Route() PortRoute {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

func (h *Harness) AuxPowered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.auxPwr
}

func (h *Harness) ModemPowered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modemPwr
}

// SetAuxPowered and SetModemPowered let a test simulate a power loss.
func (h *Harness) SetAuxPowered(v bool)   { h.mu.Lock(); h.auxPwr = v; h.mu.Unlock() }
func (h *Harness) SetModemPowered(v bool) { h.mu.Lock(); h.modemPwr = v; h.mu.Unlock() }

func (h *Harness) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	_ = h.Slave.Close()
	return h.Master.Close()
}
