package fakepeer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chairlink/core/device"
	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/core/wire"
	"github.com/kilianp07/chairlink/infra/discovery"
	"github.com/kilianp07/chairlink/infra/hardware/sim"
	"github.com/kilianp07/chairlink/infra/transport/tcp"
	"github.com/kilianp07/chairlink/internal/fakepeer"
)

type chanAnnouncer chan session.Endpoint

func (c chanAnnouncer) Announce(_ context.Context, e session.Endpoint) error {
	c <- e
	return nil
}

func TestSessionOverTCP(t *testing.T) {
	dev := sim.New(sim.Config{})
	require.NoError(t, dev.Open())
	state := device.New(dev, device.Config{ButtonPulse: time.Millisecond}, nil, nil)

	endpoints := make(chanAnnouncer, 4)
	mgr, err := session.NewManager(session.Config{}, session.Deps{
		Resolver:  discovery.Static{Address: "127.0.0.1"},
		Transport: tcp.New(tcp.Config{ListenHost: "127.0.0.1", RedialInterval: 20 * time.Millisecond}, nil),
		Announcer: endpoints,
		Device:    state,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	var ep session.Endpoint
	select {
	case ep = <-endpoints:
	case <-time.After(3 * time.Second):
		t.Fatal("no endpoint announced")
	}

	peer, err := fakepeer.Start(fakepeer.Config{Chair: ep.String(), ListenHost: "127.0.0.1", HeartbeatInterval: 500 * time.Millisecond, ReadyInterval: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer peer.Close()

	hctx, hcancel := context.WithTimeout(ctx, 4*time.Second)
	defer hcancel()
	_, err = peer.Handshake(hctx)
	require.NoError(t, err)
	go peer.Heartbeats(ctx)
	require.Eventually(t, func() bool { return mgr.State() == session.StateActive }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Joystick(0, 0.8))
	require.Eventually(t, func() bool {
		x, y := dev.XY()
		return x == 0 && y == 80
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Send(session.TopicTilt, wire.EncodeBool(true)))
	m, ok, err := peer.ReceiveTopic(session.TopicTilt, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	on, err := wire.DecodeBool(m.Payload)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, peer.Joystick(0, 0.9))
	require.Eventually(t, func() bool {
		return dev.Axis(hardware.AxisTilt) == hardware.DirectionUp
	}, 2*time.Second, 10*time.Millisecond)
	x, y := dev.XY()
	assert.Zero(t, x)
	assert.Zero(t, y)

	require.NoError(t, peer.Send(session.TopicGear, wire.EncodeBool(true)))
	m, ok, err = peer.ReceiveTopic(session.TopicGear, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	gear, err := wire.DecodeInt32(m.Payload)
	require.NoError(t, err)
	assert.Equal(t, int32(2), gear)

	m, ok, err = peer.ReceiveTopic(session.TopicSpeed, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, fakepeer.Describe(m), "wheelchair_speed=")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "lights=true", fakepeer.Describe(session.Message{Topic: session.TopicLights, Payload: wire.EncodeBool(true)}))
	assert.Equal(t, "gear=3", fakepeer.Describe(session.Message{Topic: session.TopicGear, Payload: wire.EncodeInt32(3)}))
	assert.Equal(t, "joystick_settings (4 bytes)", fakepeer.Describe(session.Message{Topic: session.TopicJoystickSettings, Payload: []byte("abcd")}))
	assert.Equal(t, "x 01", fakepeer.Describe(session.Message{Topic: "x", Payload: []byte{1}}))
}

func TestStartRejectsBadEndpoint(t *testing.T) {
	_, err := fakepeer.Start(fakepeer.Config{Chair: "nohost"}, nil)
	assert.Error(t, err)
}
