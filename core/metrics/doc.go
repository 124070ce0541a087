// Package metrics defines the interfaces used to export session and device
// health. Concrete sinks (Prometheus, InfluxDB) live in infra/metrics and
// register themselves by name so they can be selected from configuration.
package metrics
