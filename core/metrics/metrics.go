package metrics

import "time"

// SessionStateEvent describes a transition of the peer session state machine.
type SessionStateEvent struct {
	Attempt uint64
	From    string
	To      string
	Reason  string
	Time    time.Time
}

// SpeedEvent is one telemetry sample read from the controller.
type SpeedEvent struct {
	Setting   int
	TrueSpeed float32
	Limited   bool
	Time      time.Time
}

// MetricsSink records session and device health for observability purposes.
type MetricsSink interface {
	RecordSessionState(ev SessionStateEvent) error
	RecordHardwareFailure(op string) error
	RecordInbound(topic string, accepted bool) error
}

// SpeedRecorder records speed telemetry samples.
type SpeedRecorder interface {
	RecordSpeed(ev SpeedEvent) error
}

// ConfigPushRecorder records forwarded configuration blobs.
type ConfigPushRecorder interface {
	RecordConfigPush(size int, at time.Time) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordSessionState(SessionStateEvent) error { return nil }
func (NopSink) RecordHardwareFailure(string) error         { return nil }
func (NopSink) RecordInbound(string, bool) error           { return nil }
func (NopSink) RecordSpeed(SpeedEvent) error               { return nil }
func (NopSink) RecordConfigPush(int, time.Time) error      { return nil }
