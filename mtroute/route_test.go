package mtroute

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteFileSinkDevices(t *testing.T) {
	r, err := New("/var/mt", "%Y%m%d-%H%M%S", nil)
	require.NoError(t, err)
	r.SetClock(func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) })

	outcome, dev, path, err := r.Route(uint16(DeviceModem)*TypeRange+5, []byte("x"), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaveToFile, outcome)
	assert.Equal(t, DeviceModem, dev)
	assert.Contains(t, path, "modem")
	assert.Contains(t, path, "20260731-120000")
}

func TestRoutePort3CopiesThrough(t *testing.T) {
	var notified Device
	r, err := New("/var/mt", "%Y", func(d Device) { notified = d })
	require.NoError(t, err)

	outcome, dev, _, err := r.Route(uint16(DeviceRS422Port3)*TypeRange, nil, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCopyPort3, outcome)
	assert.Equal(t, DeviceRS422Port3, dev)
	assert.Equal(t, DeviceRS422Port3, notified)
}

func TestRouteSystemDispatchesRegisteredAction(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)

	called := false
	r.RegisterSystemAction(3, func(sub uint16, payload []byte) error {
		called = true
		assert.Equal(t, uint16(3), sub)
		return nil
	})

	outcome, dev, _, err := r.Route(uint16(DeviceSystem)*TypeRange+3, []byte("reboot"), false)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, OutcomeBufferOnly, outcome)
	assert.Equal(t, DeviceSystem, dev)
}

func TestRouteSystemActionErrorPropagates(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)
	want := errors.New("boom")
	r.RegisterSystemAction(1, func(uint16, []byte) error { return want })

	_, _, _, err = r.Route(uint16(DeviceSystem)*TypeRange+1, nil, false)
	assert.ErrorIs(t, err, want)
}

func TestRouteOutOfRangeType(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)
	_, _, _, err = r.Route(uint16(deviceCount)*TypeRange, nil, false)
	assert.Error(t, err)
}

func TestRouteFailedRedirectsToErrorSubdir(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)
	r.SetClock(func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) })

	outcome, dev, path, err := r.Route(uint16(DeviceModem)*TypeRange+5, []byte("x"), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaveToFile, outcome)
	assert.Equal(t, DeviceModem, dev)
	assert.Contains(t, path, "Modem/Error")
}

func TestRouteNotifyPolicyEither(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)
	var states []bool
	r.SetIndicator(func(on bool) { states = append(states, on) })
	r.SetNotifyPolicy(NotifyEither)

	_, _, _, err = r.Route(uint16(DeviceRS422Port2)*TypeRange, nil, false)
	require.NoError(t, err)
	assert.True(t, r.PendingRead(DeviceRS422Port2))
	assert.True(t, states[len(states)-1])

	r.ClearPendingRead(DeviceRS422Port2)
	assert.False(t, r.PendingRead(DeviceRS422Port2))
	assert.False(t, states[len(states)-1])
}

func TestRouteNotifyPolicyBothRequiresBothPorts(t *testing.T) {
	r, err := New("/var/mt", "%Y", nil)
	require.NoError(t, err)
	on := false
	r.SetIndicator(func(v bool) { on = v })
	r.SetNotifyPolicy(NotifyBoth)

	_, _, _, err = r.Route(uint16(DeviceRS422Port2)*TypeRange, nil, false)
	require.NoError(t, err)
	assert.False(t, on)

	_, _, _, err = r.Route(uint16(DeviceRS422Port3)*TypeRange, nil, false)
	require.NoError(t, err)
	assert.True(t, on)
}
