package powerctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbdlink/moduart/transport"
)

type fakeOutput struct {
	value  int
	closed bool
	failOn int // SetValue fails if set to this value, -1 disables
}

func (f *fakeOutput) SetValue(v int) error {
	if v == f.failOn {
		return assert.AnError
	}
	f.value = v
	return nil
}
func (f *fakeOutput) Close() error { f.closed = true; return nil }

type fakeInput struct {
	value int
}

func (f *fakeInput) Value() (int, error) { return f.value, nil }
func (f *fakeInput) Close() error        { return nil }

func newTestLines() (*GPIOLines, *fakeOutput, *fakeOutput, *fakeOutput, *fakeInput, *fakeInput) {
	route := &fakeOutput{failOn: -1}
	modemPower := &fakeOutput{value: 1, failOn: -1}
	auxPower := &fakeOutput{value: 1, failOn: -1}
	auxSense := &fakeInput{value: 1}
	modemSense := &fakeInput{value: 1}
	return newGPIOLines(route, modemPower, auxPower, auxSense, modemSense), route, modemPower, auxPower, auxSense, modemSense
}

func TestSetRouteTracksCurrentRoute(t *testing.T) {
	g, route, _, _, _, _ := newTestLines()

	require.NoError(t, g.SetRoute(transport.ProgrammingPort))
	assert.Equal(t, 1, route.value)
	assert.Equal(t, transport.ProgrammingPort, g.Route())

	require.NoError(t, g.SetRoute(transport.DataPort))
	assert.Equal(t, 0, route.value)
	assert.Equal(t, transport.DataPort, g.Route())
}

func TestPowerSenseReflectsInputLines(t *testing.T) {
	g, _, _, _, auxSense, modemSense := newTestLines()

	assert.True(t, g.AuxPowered())
	assert.True(t, g.ModemPowered())

	auxSense.value = 0
	modemSense.value = 0
	assert.False(t, g.AuxPowered())
	assert.False(t, g.ModemPowered())
}

func TestPowerCycleModemTogglesLowThenHigh(t *testing.T) {
	g, _, modemPower, _, _, _ := newTestLines()

	ok := g.PowerCycleModem()
	assert.True(t, ok)
	assert.Equal(t, 1, modemPower.value) // left high after the cycle
}

func TestPowerCycleAuxFailsWithoutPanicking(t *testing.T) {
	g, _, _, auxPower, _, _ := newTestLines()
	auxPower.failOn = 0

	ok := g.PowerCycleAux()
	assert.False(t, ok)
}
