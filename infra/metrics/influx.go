package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/infra/logger"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Chair tags every point so several chairs can share a bucket.
	Chair string `json:"chair"`
}

// InfluxSink writes session and telemetry events to InfluxDB using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	chair    string
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	chair := cfg.Chair
	if chair == "" {
		chair = "default"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		chair:    chair,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p.AddTag("chair", s.chair))
}

// RecordSessionState writes one point per transition.
func (s *InfluxSink) RecordSessionState(ev coremetrics.SessionStateEvent) error {
	p := write.NewPointWithMeasurement("session_state").
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("attempt", int64(ev.Attempt)).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordHardwareFailure(op string) error {
	p := write.NewPointWithMeasurement("hardware_failure").
		AddTag("op", op).
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordInbound is a no-op: per-message points would flood the bucket. The
// Prometheus sink counts inbound traffic.
func (s *InfluxSink) RecordInbound(string, bool) error { return nil }

func (s *InfluxSink) RecordSpeed(ev coremetrics.SpeedEvent) error {
	p := write.NewPointWithMeasurement("wheelchair_speed").
		AddField("speed_kmh", round3(float64(ev.TrueSpeed))).
		AddField("setting", ev.Setting).
		AddField("limited", ev.Limited).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordConfigPush(size int, at time.Time) error {
	p := write.NewPointWithMeasurement("config_push").
		AddField("bytes", size).
		SetTime(at)
	return s.write(p)
}

// Close flushes and releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
