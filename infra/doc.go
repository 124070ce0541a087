// Package infra contains the adapters behind the core interfaces: transports,
// hardware backends, discovery, metrics exporters and the zerolog logger.
// These packages depend on core, never the other way around.
package infra
