package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/core/session"
)

var knownTopics = func() map[string]bool {
	m := map[string]bool{session.TopicReady: true, session.TopicHeartbeat: true}
	for _, t := range session.OperatingTopics {
		m[t] = true
	}
	return m
}()

var sessionStates = []string{
	session.StateIdle.String(),
	session.StateDiscovering.String(),
	session.StateBinding.String(),
	session.StateAwaitingReady.String(),
	session.StateActive.String(),
	session.StateFailed.String(),
}

// PromSink exposes session and device health as Prometheus metrics.
type PromSink struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	attempts    prometheus.Gauge
	hwFailures  *prometheus.CounterVec
	inbound     *prometheus.CounterVec
	speed       prometheus.Gauge
	setting     prometheus.Gauge
	limited     prometheus.Gauge
	configPush  prometheus.Counter
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register returns the already registered collector when one with the same
// descriptor exists, so sinks can be rebuilt within one process.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.state, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chairlink_session_state",
		Help: "1 for the current session state, 0 otherwise",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chairlink_session_transitions_total",
		Help: "Session state transitions by target state",
	}, []string{"to"})); err != nil {
		return nil, err
	}
	if s.attempts, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chairlink_session_attempt",
		Help: "Number of the current connection attempt",
	})); err != nil {
		return nil, err
	}
	if s.hwFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chairlink_hardware_failures_total",
		Help: "Failed hardware capability calls by operation",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if s.inbound, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chairlink_inbound_messages_total",
		Help: "Messages received from the peer",
	}, []string{"topic", "accepted"})); err != nil {
		return nil, err
	}
	if s.speed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chairlink_speed_kmh",
		Help: "Measured wheelchair speed",
	})); err != nil {
		return nil, err
	}
	if s.setting, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chairlink_speed_setting",
		Help: "Speed level reported by the controller",
	})); err != nil {
		return nil, err
	}
	if s.limited, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chairlink_speed_limited",
		Help: "1 while the controller throttles the speed",
	})); err != nil {
		return nil, err
	}
	if s.configPush, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chairlink_config_push_total",
		Help: "Joystick configuration blobs forwarded to the peer",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordSessionState moves the state gauge and counts the transition.
func (s *PromSink) RecordSessionState(ev coremetrics.SessionStateEvent) error {
	for _, st := range sessionStates {
		v := 0.0
		if st == ev.To {
			v = 1
		}
		s.state.WithLabelValues(st).Set(v)
	}
	s.transitions.WithLabelValues(ev.To).Inc()
	s.attempts.Set(float64(ev.Attempt))
	return nil
}

func (s *PromSink) RecordHardwareFailure(op string) error {
	s.hwFailures.WithLabelValues(op).Inc()
	return nil
}

// RecordInbound counts messages by topic. Unknown topics are folded into
// "other" to bound the label cardinality.
func (s *PromSink) RecordInbound(topic string, accepted bool) error {
	if !knownTopics[topic] {
		topic = "other"
	}
	s.inbound.WithLabelValues(topic, strconv.FormatBool(accepted)).Inc()
	return nil
}

func (s *PromSink) RecordSpeed(ev coremetrics.SpeedEvent) error {
	s.speed.Set(float64(ev.TrueSpeed))
	s.setting.Set(float64(ev.Setting))
	if ev.Limited {
		s.limited.Set(1)
	} else {
		s.limited.Set(0)
	}
	return nil
}

func (s *PromSink) RecordConfigPush(int, time.Time) error {
	s.configPush.Inc()
	return nil
}
