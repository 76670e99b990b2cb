// Package powerctl implements the power-manager collaborator from spec
// §1 (power-cycle modem and aux board) and the port-routing /
// power-state lines transport.Real delegates to, backed by
// github.com/warthog618/go-gpiocdev.
package powerctl

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sbdlink/moduart/transport"
)

// outputLine and inputLine are the minimal surfaces GPIOLines needs,
// mirroring the teacher's ptt_test.go gpiodOutputLine idiom so tests can
// substitute an in-memory fake instead of a real gpio-cdev chip.
type outputLine interface {
	SetValue(int) error
	Close() error
}

type inputLine interface {
	Value() (int, error)
	Close() error
}

// GPIOLines drives the port-routing bit and reads modem/aux power
// state, and power-cycles each board through a relay line.
type GPIOLines struct {
	route       outputLine
	modemPower  outputLine
	auxPower    outputLine
	auxSense    inputLine
	modemSense  inputLine
	currentRoute transport.PortRoute
}

// Config names the gpio-cdev chip and line offsets for a board.
type Config struct {
	Chip             string
	RouteOffset      int // 0 = DATA_PORT, 1 = PROGRAMMING_PORT
	ModemPowerOffset int // active-low relay driving modem power
	AuxPowerOffset   int // active-low relay driving aux board power
	AuxSenseOffset   int // reads back aux board power-good
	ModemSenseOffset int // reads back modem power-good
}

// Open requests all five lines from the named gpio-cdev chip.
func Open(cfg Config) (*GPIOLines, error) {
	route, err := gpiocdev.RequestLine(cfg.Chip, cfg.RouteOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("powerctl: request route line: %w", err)
	}
	modemPower, err := gpiocdev.RequestLine(cfg.Chip, cfg.ModemPowerOffset, gpiocdev.AsOutput(1))
	if err != nil {
		route.Close()
		return nil, fmt.Errorf("powerctl: request modem power line: %w", err)
	}
	auxPower, err := gpiocdev.RequestLine(cfg.Chip, cfg.AuxPowerOffset, gpiocdev.AsOutput(1))
	if err != nil {
		route.Close()
		modemPower.Close()
		return nil, fmt.Errorf("powerctl: request aux power line: %w", err)
	}
	auxSense, err := gpiocdev.RequestLine(cfg.Chip, cfg.AuxSenseOffset, gpiocdev.AsInput)
	if err != nil {
		route.Close()
		modemPower.Close()
		auxPower.Close()
		return nil, fmt.Errorf("powerctl: request aux sense line: %w", err)
	}
	modemSense, err := gpiocdev.RequestLine(cfg.Chip, cfg.ModemSenseOffset, gpiocdev.AsInput)
	if err != nil {
		route.Close()
		modemPower.Close()
		auxPower.Close()
		auxSense.Close()
		return nil, fmt.Errorf("powerctl: request modem sense line: %w", err)
	}

	return newGPIOLines(route, modemPower, auxPower, auxSense, modemSense), nil
}

func newGPIOLines(route, modemPower, auxPower outputLine, auxSense, modemSense inputLine) *GPIOLines {
	return &GPIOLines{
		route:      route,
		modemPower: modemPower,
		auxPower:   auxPower,
		auxSense:   auxSense,
		modemSense: modemSense,
	}
}

// SetRoute implements transport.RoutingSwitch.
func (g *GPIOLines) SetRoute(p transport.PortRoute) error {
	v := 0
	if p == transport.ProgrammingPort {
		v = 1
	}
	if err := g.route.SetValue(v); err != nil {
		return fmt.Errorf("powerctl: set route: %w", err)
	}
	g.currentRoute = p
	return nil
}

// Route implements transport.RoutingSwitch.
func (g *GPIOLines) Route() transport.PortRoute { return g.currentRoute }

// AuxPowered implements transport.PowerSensor.
func (g *GPIOLines) AuxPowered() bool {
	v, err := g.auxSense.Value()
	return err == nil && v != 0
}

// ModemPowered implements transport.PowerSensor.
func (g *GPIOLines) ModemPowered() bool {
	v, err := g.modemSense.Value()
	return err == nil && v != 0
}

// PowerCycleModem drives the modem power relay low then high, as spec
// §4.1 reset() requires. Returns false if either relay write fails; it
// makes no voice-call check of its own.
func (g *GPIOLines) PowerCycleModem() bool {
	if err := g.modemPower.SetValue(0); err != nil {
		return false
	}
	// Real hardware needs the relay to stay open long enough to
	// discharge; apilayer owns the actual delay via its tick, this call
	// only toggles the line.
	if err := g.modemPower.SetValue(1); err != nil {
		return false
	}
	return true
}

// PowerCycleAux drives the aux board's power relay low then high.
func (g *GPIOLines) PowerCycleAux() bool {
	if err := g.auxPower.SetValue(0); err != nil {
		return false
	}
	if err := g.auxPower.SetValue(1); err != nil {
		return false
	}
	return true
}

// Close releases all five gpio-cdev lines.
func (g *GPIOLines) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{g.route, g.modemPower, g.auxPower, g.auxSense, g.modemSense} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
