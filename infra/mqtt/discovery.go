package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/chairlink/core/logger"
)

// ResolverConfig configures broadcast discovery.
type ResolverConfig struct {
	Config         `json:",squash"`
	BroadcastTopic string        `json:"broadcast_topic"`
	ResponseTopic  string        `json:"response_topic"`
	MagicWord      string        `json:"magic_word"`
	Wait           time.Duration `json:"wait"`
}

// SetDefaults applies sane defaults.
func (c *ResolverConfig) SetDefaults() {
	c.Config.SetDefaults()
	if c.BroadcastTopic == "" {
		c.BroadcastTopic = "chairlink/discovery"
	}
	if c.ResponseTopic == "" {
		c.ResponseTopic = "chairlink/discovery/response"
	}
	if c.MagicWord == "" {
		c.MagicWord = "chairlink?"
	}
	if c.Wait == 0 {
		c.Wait = 2 * time.Second
	}
}

// Announcement is what a peer replies to a discovery broadcast.
type Announcement struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Resolver publishes the magic word on a broadcast topic and returns the
// address of the first peer answering on the response topic.
type Resolver struct {
	cfg ResolverConfig
	cli pahoClient
	log logger.Logger
}

// NewResolver connects to the broker and returns a resolver.
func NewResolver(cfg ResolverConfig, log logger.Logger) (*Resolver, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	opts, err := NewClientOptions(cfg.Config, "discovery")
	if err != nil {
		return nil, err
	}
	r := &Resolver{cfg: cfg, log: log}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	cli := newMQTTClient(opts)
	if err := waitToken(cli.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	r.cli = cli
	return r, nil
}

// Resolve broadcasts and waits for the first valid answer, the configured wait
// or ctx cancellation.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	found := make(chan Announcement, 1)
	handler := func(_ paho.Client, m paho.Message) {
		var a Announcement
		if err := json.Unmarshal(m.Payload(), &a); err != nil || a.Address == "" {
			r.log.Warnf("invalid discovery payload %q", m.Payload())
			return
		}
		select {
		case found <- a:
		default:
		}
	}
	if err := waitToken(r.cli.Subscribe(r.cfg.ResponseTopic, r.cfg.QoS, handler), r.cfg.Timeout); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", r.cfg.ResponseTopic, err)
	}
	defer func() {
		if err := waitToken(r.cli.Unsubscribe(r.cfg.ResponseTopic), r.cfg.Timeout); err != nil {
			r.log.Errorf("unsubscribe error: %v", err)
		}
	}()
	if err := waitToken(r.cli.Publish(r.cfg.BroadcastTopic, r.cfg.QoS, false, []byte(r.cfg.MagicWord)), r.cfg.Timeout); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}

	timer := time.NewTimer(r.cfg.Wait)
	defer timer.Stop()
	select {
	case a := <-found:
		r.log.Infof("peer %s answered discovery at %s", a.Name, a.Address)
		return a.Address, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("no peer answered within %s", r.cfg.Wait)
	}
}

// Close disconnects from the broker.
func (r *Resolver) Close() {
	if r.cli != nil && r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}
