package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/infra/hardware/sim"
)

type failureSink struct {
	metrics.NopSink
	ops []string
}

func (f *failureSink) RecordHardwareFailure(op string) error {
	f.ops = append(f.ops, op)
	return nil
}

func newTestState(t *testing.T) (*State, *sim.Device) {
	t.Helper()
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	dev.Reset()
	st := New(dev, Config{ButtonPulse: time.Microsecond}, nil, nil)
	st.sleep = func(time.Duration) {}
	return st, dev
}

func TestSetDirectionDriveMode(t *testing.T) {
	st, dev := newTestState(t)

	st.SetDirection(0, 0.8)

	xy := dev.CallsTo("set_xy")
	require.Len(t, xy, 1)
	assert.Equal(t, []any{int8(0), int8(80)}, xy[0].Args)
	axis := dev.CallsTo("set_axis")
	require.Len(t, axis, 1, "tilt neutralised once on entering drive mode")
	assert.Equal(t, []any{hardware.AxisTilt, hardware.DirectionNone}, axis[0].Args)

	st.SetDirection(0, 0.8)
	st.SetDirection(0.5, -0.5)
	assert.Len(t, dev.CallsTo("set_xy"), 3, "drive commands are sent on every call")
	assert.Len(t, dev.CallsTo("set_axis"), 1)
	x, y := dev.XY()
	assert.Equal(t, int8(50), x)
	assert.Equal(t, int8(-50), y)
}

func TestSetDirectionDeadzoneAndClamp(t *testing.T) {
	cases := []struct {
		in   float64
		want int8
	}{
		{0, 0},
		{0.14, 0},
		{-0.14, 0},
		{0.15, 15},
		{-0.15, -15},
		{1, 100},
		{1.27, 127},
		{3, 127},
		{-3, -127},
	}
	for _, c := range cases {
		st, dev := newTestState(t)
		st.SetDirection(c.in, c.in)
		x, y := dev.XY()
		assert.Equal(t, c.want, x, "x for %v", c.in)
		assert.Equal(t, c.want, y, "y for %v", c.in)
	}
}

func TestSetDirectionTiltMode(t *testing.T) {
	st, dev := newTestState(t)

	assert.True(t, st.SetTiltMode(true))
	xy := dev.CallsTo("set_xy")
	require.Len(t, xy, 1, "drive stopped when entering tilt mode")
	assert.Equal(t, []any{int8(0), int8(0)}, xy[0].Args)

	st.SetDirection(0, 0.8)
	st.SetDirection(0.3, 0.9)
	assert.Len(t, dev.CallsTo("set_xy"), 1, "no drive output in tilt mode")
	axis := dev.CallsTo("set_axis")
	require.Len(t, axis, 1, "tilt command only on change")
	assert.Equal(t, []any{hardware.AxisTilt, hardware.DirectionUp}, axis[0].Args)

	st.SetDirection(0, 0.4)
	st.SetDirection(0, -0.6)
	axis = dev.CallsTo("set_axis")
	require.Len(t, axis, 3)
	assert.Equal(t, hardware.DirectionNone, axis[1].Args[1])
	assert.Equal(t, hardware.DirectionDown, axis[2].Args[1])
	assert.Equal(t, hardware.DirectionDown, st.Snapshot().TiltDirection)
}

func TestModeExclusivity(t *testing.T) {
	st, dev := newTestState(t)
	inputs := [][2]float64{{0.2, 0.9}, {0, -0.7}, {0.9, 0.1}, {0, 0}}
	for i, mode := range []bool{false, true, false, true, true, false} {
		st.SetTiltMode(mode)
		for _, in := range inputs {
			st.SetDirection(in[0], in[1])
			x, y := dev.XY()
			if st.Snapshot().TiltMode {
				assert.Equal(t, int8(0), x, "step %d", i)
				assert.Equal(t, int8(0), y, "step %d", i)
			} else {
				assert.Equal(t, hardware.DirectionNone, dev.Axis(hardware.AxisTilt), "step %d", i)
			}
		}
	}
}

func TestLeavingTiltModeStopsActuator(t *testing.T) {
	st, dev := newTestState(t)
	st.SetTiltMode(true)
	st.SetDirection(0, 1)
	require.Equal(t, hardware.DirectionUp, dev.Axis(hardware.AxisTilt))

	assert.False(t, st.SetTiltMode(false))
	assert.Equal(t, hardware.DirectionNone, dev.Axis(hardware.AxisTilt))
	assert.False(t, st.SetTiltMode(false), "unchanged mode is a no-op")
	assert.Len(t, dev.CallsTo("set_axis"), 2)
}

func TestToggleLightsAlternates(t *testing.T) {
	st, dev := newTestState(t)
	assert.True(t, st.ToggleLights())
	assert.True(t, dev.Light(hardware.LightMain))
	assert.False(t, st.ToggleLights())
	assert.False(t, dev.Light(hardware.LightMain))
	assert.True(t, st.ToggleLights())
}

func TestToggleWarnTurnsIndicatorsOff(t *testing.T) {
	st, dev := newTestState(t)
	require.NoError(t, dev.SetLight(hardware.LightIndicatorLeft, true))

	assert.True(t, st.ToggleWarn())
	assert.True(t, dev.Light(hardware.LightHazard))
	assert.False(t, dev.Light(hardware.LightIndicatorLeft))
	assert.False(t, dev.Light(hardware.LightIndicatorRight))

	assert.False(t, st.ToggleWarn())
	assert.False(t, dev.Light(hardware.LightHazard))
}

func TestSetGearClamps(t *testing.T) {
	st, dev := newTestState(t)
	assert.Equal(t, 1, st.SetGear(false), "down at the bottom is a no-op")
	assert.Empty(t, dev.CallsTo("set_button"))

	for want := 2; want <= 5; want++ {
		assert.Equal(t, want, st.SetGear(true))
	}
	assert.Equal(t, 5, st.SetGear(true))
	assert.Equal(t, 5, st.SetGear(true))
	assert.Len(t, dev.CallsTo("set_button"), 8, "press and release per change")

	assert.Equal(t, 4, st.SetGear(false))
	presses := dev.CallsTo("set_button")
	assert.Equal(t, []any{hardware.ButtonGearDown, true}, presses[8].Args)
	assert.Equal(t, []any{hardware.ButtonGearDown, false}, presses[9].Args)

	r, err := dev.Speed()
	require.NoError(t, err)
	assert.Equal(t, 4, r.Setting)
}

func TestSetHornAbsolute(t *testing.T) {
	st, dev := newTestState(t)
	st.SetHorn(true)
	st.SetHorn(true)
	assert.True(t, dev.Horn())
	assert.True(t, st.Snapshot().Horn)
	st.SetHorn(false)
	assert.False(t, dev.Horn())
}

func TestHardwareFailureKeepsStateAndRetries(t *testing.T) {
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	sink := &failureSink{}
	st := New(dev, Config{}, nil, sink)
	st.sleep = func(time.Duration) {}

	dev.FailOn("set_light", errors.New("bus off"))
	assert.True(t, st.ToggleLights())
	assert.True(t, st.Snapshot().Lights, "memory keeps the applied toggle")
	assert.False(t, dev.Light(hardware.LightMain))
	assert.Equal(t, []string{"set_light"}, sink.ops)

	st.SetTiltMode(true)
	dev.FailOn("set_axis", errors.New("bus off"))
	st.SetDirection(0, 1)
	assert.Equal(t, hardware.DirectionNone, st.Snapshot().TiltDirection)

	dev.FailOn("set_axis", nil)
	st.SetDirection(0, 1)
	assert.Equal(t, hardware.DirectionUp, dev.Axis(hardware.AxisTilt), "next equivalent command retries")
}

func TestStop(t *testing.T) {
	st, dev := newTestState(t)
	st.SetDirection(0.5, 0.5)
	require.NoError(t, st.Stop())
	x, y := dev.XY()
	assert.Equal(t, int8(0), x)
	assert.Equal(t, int8(0), y)
	assert.Equal(t, hardware.DirectionNone, dev.Axis(hardware.AxisTilt))

	dev.FailOn("set_xy", errors.New("gone"))
	err := st.Stop()
	assert.ErrorIs(t, err, hardware.ErrHardware)
}

func TestKeeperSendsHeartbeats(t *testing.T) {
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	st := New(dev, Config{HeartbeatInterval: 5 * time.Millisecond}, nil, nil)

	k := st.StartKeeper(context.Background())
	assert.Eventually(t, func() bool { return k.Sent() >= 3 }, time.Second, 5*time.Millisecond)
	k.Stop()
	n := len(dev.CallsTo("heartbeat"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(dev.CallsTo("heartbeat")), "no heartbeats after Stop")
}

func TestKeeperCountsFailures(t *testing.T) {
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	dev.FailOn("heartbeat", errors.New("nak"))
	st := New(dev, Config{HeartbeatInterval: 2 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	k := st.StartKeeper(ctx)
	assert.Eventually(t, func() bool { return k.Failed() >= 2 }, time.Second, 2*time.Millisecond)
	cancel()
	k.Stop()
	assert.Zero(t, k.Sent())
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 100.0, c.Scale)
	assert.Equal(t, 15, c.Deadzone)
	assert.Equal(t, 200*time.Millisecond, c.HeartbeatInterval)

	bad := c
	bad.InitialGear = 6
	assert.Error(t, bad.Validate())
	bad = c
	bad.Deadzone = 200
	assert.Error(t, bad.Validate())
}

func TestSpeedFailureReportedOncePerOutage(t *testing.T) {
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	sink := &failureSink{}
	st := New(dev, Config{}, nil, sink)

	dev.FailOn("speed", errors.New("no telemetry yet"))
	for range 50 {
		_, err := st.Speed()
		assert.ErrorIs(t, err, hardware.ErrHardware)
	}
	assert.Equal(t, []string{"speed"}, sink.ops, "a continuous outage is counted once")

	dev.FailOn("speed", nil)
	_, err := st.Speed()
	require.NoError(t, err)

	dev.FailOn("speed", errors.New("bus off"))
	_, err = st.Speed()
	assert.Error(t, err)
	assert.Equal(t, []string{"speed", "speed"}, sink.ops, "a new outage after recovery is counted again")
}
