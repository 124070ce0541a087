package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

type fakeConn struct {
	mu        sync.Mutex
	published []*nats.Msg
	subject   string
	inbox     chan *nats.Msg
	closed    bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, &nats.Msg{Subject: subj, Data: data})
	return nil
}

func (f *fakeConn) SubscribeSync(subj string) (subscription, error) {
	f.subject = subj
	return f, nil
}

func (f *fakeConn) NextMsg(timeout time.Duration) (*nats.Msg, error) {
	select {
	case m := <-f.inbox:
		return m, nil
	case <-time.After(timeout):
		return nil, nats.ErrTimeout
	}
}

func (f *fakeConn) Unsubscribe() error { return nil }

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func bindFake(t *testing.T) (*fakeConn, *session.Channels) {
	t.Helper()
	fc := &fakeConn{inbox: make(chan *nats.Msg, 8)}
	orig := dial
	dial = func(Config, logger.Logger) (conn, error) { return fc, nil }
	t.Cleanup(func() { dial = orig })
	ch, err := New(Config{}, nil).Bind(context.Background(), "headset")
	require.NoError(t, err)
	return fc, ch
}

func TestBindSubscribesToPeerNamespace(t *testing.T) {
	fc, ch := bindFake(t)
	defer ch.Close()
	assert.Equal(t, "chairlink.headset.>", fc.subject)

	require.NoError(t, ch.Pub.Publish(session.TopicSpeed, []byte{1, 2, 3, 4}))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "chairlink.chair.wheelchair_speed", fc.published[0].Subject)
}

func TestPollFiltersLocally(t *testing.T) {
	fc, ch := bindFake(t)
	defer ch.Close()
	require.NoError(t, ch.Sub.Subscribe(session.TopicReady))

	fc.inbox <- &nats.Msg{Subject: "chairlink.headset.heartbeat", Data: []byte{1}}
	fc.inbox <- &nats.Msg{Subject: "chairlink.headset.READY"}

	msg, ok, err := ch.Sub.Poll(100 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.TopicReady, msg.Topic)

	_, ok, err = ch.Sub.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseReleasesConnectionOnce(t *testing.T) {
	fc, ch := bindFake(t)
	require.NoError(t, ch.Pub.Close())
	assert.False(t, fc.closed)
	require.NoError(t, ch.Sub.Close())
	assert.True(t, fc.closed)
	assert.ErrorIs(t, ch.Pub.Publish(session.TopicHeartbeat, nil), ErrClosed)
}

func TestBindDialFailure(t *testing.T) {
	orig := dial
	dial = func(Config, logger.Logger) (conn, error) { return nil, errors.New("no servers") }
	defer func() { dial = orig }()
	_, err := New(Config{}, nil).Bind(context.Background(), "headset")
	assert.Error(t, err)
}

func TestBindRejectsWildcardPeer(t *testing.T) {
	_, err := New(Config{}, nil).Bind(context.Background(), "head.set")
	assert.Error(t, err)
}
