package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chairlink/core/factory"
)

type recordSink struct {
	states   []SessionStateEvent
	failures []string
	speeds   int
	err      error
}

func (r *recordSink) RecordSessionState(ev SessionStateEvent) error {
	r.states = append(r.states, ev)
	return r.err
}
func (r *recordSink) RecordHardwareFailure(op string) error {
	r.failures = append(r.failures, op)
	return r.err
}
func (r *recordSink) RecordInbound(string, bool) error { return r.err }
func (r *recordSink) RecordSpeed(SpeedEvent) error     { r.speeds++; return r.err }

type plainSink struct{}

func (plainSink) RecordSessionState(SessionStateEvent) error { return nil }
func (plainSink) RecordHardwareFailure(string) error         { return nil }
func (plainSink) RecordInbound(string, bool) error           { return nil }

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordSink{}
	b := &recordSink{err: errors.New("boom")}
	m := NewMultiSink(a, b, plainSink{})

	err := m.RecordSessionState(SessionStateEvent{From: "BINDING", To: "FAILED", Time: time.Now()})
	assert.Error(t, err)
	assert.Len(t, a.states, 1)
	assert.Len(t, b.states, 1, "second sink still invoked")

	require.Error(t, m.RecordSpeed(SpeedEvent{TrueSpeed: 1}))
	assert.Equal(t, 1, a.speeds)
	assert.NoError(t, m.RecordConfigPush(10, time.Now()))

	assert.Error(t, m.RecordHardwareFailure("set_xy"))
	assert.Equal(t, []string{"set_xy"}, a.failures)
}

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := NewMetricsSink([]factory.ModuleConfig{{Type: "does-not-exist"}})
	assert.Error(t, err)
}

func TestNewMetricsSinkMultiple(t *testing.T) {
	require.NoError(t, RegisterMetricsSink("test-record", func(map[string]any) (MetricsSink, error) {
		return &recordSink{}, nil
	}))
	s, err := NewMetricsSink([]factory.ModuleConfig{{Type: "test-record"}, {Type: "test-record"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)
}
