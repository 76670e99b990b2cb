// Command moduartsim drives the protocol engine and API layer against
// a simulated modem on the other end of a pty pair, for manual
// smoke-testing without real satellite hardware.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sbdlink/moduart/apilayer"
	"github.com/sbdlink/moduart/driverconfig"
	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/mtroute"
	"github.com/sbdlink/moduart/outbox"
	"github.com/sbdlink/moduart/protocol"
	"github.com/sbdlink/moduart/transport"
)

func main() {
	h, err := transport.NewHarness()
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening harness:", err)
		os.Exit(1)
	}
	defer h.Close()

	go fakeModem(h.Master)

	rec := modemlog.New(os.Stdout, 32)
	cfg := driverconfig.Default()
	cfg.OutboxDir = mustTempDir("outbox")
	cfg.MTSaveDir = mustTempDir("mt")

	eng := protocol.New(h, rec, time.Now)
	ob := outbox.New(cfg.OutboxDir, "", outbox.KeepNone)
	router, err := mtroute.New(cfg.MTSaveDir, cfg.MTFilePattern, func(dev mtroute.Device) {
		rec.Info("routed", "device", dev.String())
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "building router:", err)
		os.Exit(1)
	}
	layer := apilayer.New(eng, cfg, ob, router, rec, time.Now, nil)

	for i := 0; i < 2000; i++ {
		layer.Tick()
		rec.DrainPosted()
		if layer.State() == apilayer.WFIdle {
			rec.Info("reached IDLE", "imei", eng.IMEI(), "sw_version", eng.ModemSWVersion())
			return
		}
		time.Sleep(time.Millisecond)
	}
	rec.Warn("did not reach IDLE within the smoke-test budget", "state", layer.State().String())
}

func mustTempDir(name string) string {
	dir, err := os.MkdirTemp("", "moduartsim-"+name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "making temp dir:", err)
		os.Exit(1)
	}
	return dir
}

// fakeModem plays the other end of the UART: it answers the fixed
// init sequence the engine issues, then leaves the conversation open
// for interactive testing via the harness master fd.
func fakeModem(rw io.ReadWriter) {
	r := bufio.NewReader(rw)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		switch {
		case cmd == "AT+CGSN":
			fmt.Fprint(rw, "123456789012345\r\n0\r\n")
		case cmd == "AT+SBDMTA=0", cmd == "AT+SBDAREG=1":
			fmt.Fprint(rw, "0\r\n")
		case strings.HasPrefix(cmd, "AT+SBDIX"):
			fmt.Fprint(rw, "+SBDIX: 0, 1, 0, 0, 0, 0\r\n0\r\n")
		case cmd == "AT+CGMR":
			fmt.Fprint(rw, "Call Processor Version: 1.0\r\n0\r\n")
		case strings.HasPrefix(cmd, "AT+SBDWB"):
			fmt.Fprint(rw, "READY\r\n")
		case cmd == "AT+CSQF":
			fmt.Fprint(rw, "+CSQF:4\r\n0\r\n")
		case cmd == "AT+CLCC":
			fmt.Fprint(rw, "0\r\n")
		case cmd == "AT+CREG?":
			fmt.Fprint(rw, "+CREG: 0,1\r\n0\r\n")
		}
	}
}
