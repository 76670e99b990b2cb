// Command moduartd is the satellite/aux-board driver daemon: it owns
// the shared UART, runs the protocol engine and API-layer workflow,
// and feeds/drains the filesystem outbox and MT save directories.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/sbdlink/moduart/apilayer"
	"github.com/sbdlink/moduart/devicewatch"
	"github.com/sbdlink/moduart/driverconfig"
	"github.com/sbdlink/moduart/modemlog"
	"github.com/sbdlink/moduart/mtroute"
	"github.com/sbdlink/moduart/outbox"
	"github.com/sbdlink/moduart/powerctl"
	"github.com/sbdlink/moduart/protocol"
	"github.com/sbdlink/moduart/transport"
)

const tickInterval = 20 * time.Millisecond

var (
	errPowerCycleFailed = errors.New("moduartd: power-cycle relay write failed")
	errNoCISPowerLine    = errors.New("moduartd: no CIS power relay wired on this board")
	errNo573BusLine      = errors.New("moduartd: no 573 databus reset line wired on this board")
)

func main() {
	configFile := pflag.StringP("config-file", "c", "/etc/moduart/moduart.yaml", "configuration file path")
	waitForDevice := pflag.BoolP("wait-for-device", "w", true, "block at startup until the serial device appears")
	pflag.Parse()

	cfg := driverconfig.Default()
	if _, err := os.Stat(*configFile); err == nil {
		loaded, err := driverconfig.Load(*configFile)
		if err != nil {
			charmlog.Fatal("loading config", "file", *configFile, "err", err)
		}
		cfg = loaded
	}

	rec := modemlog.New(os.Stderr, cfg.LogRingCapacity)
	rec.SetLogLevel(cfg.LogLevel)

	startupCtx, cancelStartup := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if *waitForDevice {
		w := devicewatch.New()
		if err := w.WaitFor(startupCtx, cfg.SerialDevice); err != nil {
			rec.Error("waiting for serial device", "device", cfg.SerialDevice, "err", err)
			cancelStartup()
			os.Exit(1)
		}
	}
	cancelStartup()

	gpio, err := powerctl.Open(powerctl.Config{
		Chip:             cfg.GPIOChip,
		RouteOffset:      cfg.GPIORouteOffset,
		ModemPowerOffset: cfg.GPIOModemPowerOffset,
		AuxPowerOffset:   cfg.GPIOAuxPowerOffset,
		AuxSenseOffset:   cfg.GPIOAuxSenseOffset,
		ModemSenseOffset: cfg.GPIOModemSenseOffset,
	})
	if err != nil {
		rec.Error("opening GPIO lines", "err", err)
		os.Exit(1)
	}
	defer gpio.Close()

	serial, err := transport.Open(cfg.SerialDevice, cfg.BaudRate, gpio, gpio)
	if err != nil {
		rec.Error("opening serial device", "device", cfg.SerialDevice, "err", err)
		os.Exit(1)
	}
	defer serial.Close()

	eng := protocol.New(serial, rec, time.Now)
	eng.SetSatelliteTimeout(time.Duration(cfg.SatelliteTimeoutSec) * time.Second)

	ob := outbox.New(cfg.OutboxDir, cfg.SentDir, keepPolicyFromString(cfg.KeepPolicy))

	router, err := mtroute.New(cfg.MTSaveDir, cfg.MTFilePattern, func(dev mtroute.Device) {
		rec.Info("routed MT message", "device", dev.String())
	})
	if err != nil {
		rec.Error("building MT router", "err", err)
		os.Exit(1)
	}
	mtroute.RegisterDefaultSystemActions(router, mtroute.SystemDeps{
		Power: gpioPower{gpio},
		OnNoop: func(sub uint16, reason string) {
			rec.Info("system MT type has no wired collaborator", "sub", sub, "reason", reason)
		},
	})

	layer := apilayer.New(eng, cfg, ob, router, rec, time.Now, nil)

	rec.Info("moduartd starting", "device", cfg.SerialDevice, "baud", cfg.BaudRate)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			layer.Tick()
			rec.DrainPosted()
		case <-sigCh:
			rec.Info("moduartd shutting down")
			return
		}
	}
}

// gpioPower adapts powerctl.GPIOLines to mtroute.PowerController. The
// board only wires a relay for the modem's own power rail — there is
// no CIS power line or 573 databus reset line on this hardware, so
// those two actions report an explicit error rather than silently
// doing nothing.
type gpioPower struct {
	gpio *powerctl.GPIOLines
}

func (g gpioPower) PowerCycleModem() error {
	if !g.gpio.PowerCycleModem() {
		return errPowerCycleFailed
	}
	return nil
}

func (g gpioPower) PowerCycleCIS() error { return errNoCISPowerLine }
func (g gpioPower) Reset573Bus() error   { return errNo573BusLine }

func keepPolicyFromString(s string) outbox.KeepPolicy {
	switch s {
	case "none":
		return outbox.KeepNone
	case "on_failure":
		return outbox.KeepOnFailure
	case "move_to_sent":
		return outbox.KeepMoveToSent
	default:
		return outbox.KeepMoveToSent
	}
}
