package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", Password: "p"}, "session")
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, strings.HasPrefix(opts.ClientID, "chairlink-session-"))

	again, err := NewClientOptions(Config{Broker: "tcp://localhost:1883"}, "session")
	require.NoError(t, err)
	assert.NotEqual(t, opts.ClientID, again.ClientID)

	fixed, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "chair-1"}, "session")
	require.NoError(t, err)
	assert.Equal(t, "chair-1", fixed.ClientID)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{QoS: 3}.Validate())
	assert.Error(t, Config{UseTLS: true}.Validate())
	assert.NoError(t, Config{QoS: 1}.Validate())
}

// mockClient records calls and routes published messages back to the
// matching subscription handlers like a loopback broker.
type mockClient struct {
	opts *paho.ClientOptions

	mu          sync.Mutex
	connected   bool
	handlers    map[string]paho.MessageHandler
	published   []string
	publishErrs []error
	connectErr  error
}

func newMockClient() *mockClient {
	return &mockClient{handlers: make(map[string]paho.MessageHandler)}
}

func useMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	m.published = append(m.published, topic)
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		m.mu.Unlock()
		return &dummyToken{err: err}
	}
	h := m.handlers[topic]
	m.mu.Unlock()
	if h != nil {
		var p []byte
		switch v := payload.(type) {
		case []byte:
			p = v
		case string:
			p = []byte(v)
		}
		h(nil, mockMessage{topic: topic, p: p})
	}
	return &dummyToken{}
}

func (m *mockClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	m.mu.Lock()
	m.handlers[topic] = h
	m.mu.Unlock()
	return &dummyToken{}
}

func (m *mockClient) Unsubscribe(topics ...string) paho.Token {
	m.mu.Lock()
	for _, t := range topics {
		delete(m.handlers, t)
	}
	m.mu.Unlock()
	return &dummyToken{}
}

// deliver simulates a message from the broker.
func (m *mockClient) deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(nil, mockMessage{topic: topic, p: payload})
	return true
}

func (m *mockClient) publishedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

var errNet = fmt.Errorf("net fail")

type stalledToken struct{ dummyToken }

func (stalledToken) WaitTimeout(time.Duration) bool { return false }

func TestWaitToken(t *testing.T) {
	assert.NoError(t, waitToken(&dummyToken{}, time.Second))
	assert.ErrorIs(t, waitToken(&dummyToken{err: errNet}, time.Second), errNet)

	err := waitToken(stalledToken{}, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 10ms")
}
