// Package infra holds the adapters behind the core interfaces: SQL and REST
// repositories, layout backends, bus relays over MQTT and Kafka, metrics
// exporters, Sentry and the zerolog logger. Core packages never import infra.
package infra
