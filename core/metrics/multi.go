package metrics

import (
	"errors"
	"time"
)

// MultiSink fans records out to several sinks. Every sink is attempted; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordSessionState(ev SessionStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordSessionState(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordHardwareFailure(op string) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordHardwareFailure(op))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordInbound(topic string, accepted bool) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordInbound(topic, accepted))
	}
	return errors.Join(errs...)
}

// RecordSpeed forwards to sinks implementing SpeedRecorder.
func (m *MultiSink) RecordSpeed(ev SpeedEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SpeedRecorder); ok {
			errs = append(errs, rec.RecordSpeed(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordConfigPush forwards to sinks implementing ConfigPushRecorder.
func (m *MultiSink) RecordConfigPush(size int, at time.Time) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(ConfigPushRecorder); ok {
			errs = append(errs, rec.RecordConfigPush(size, at))
		}
	}
	return errors.Join(errs...)
}
