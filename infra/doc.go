// Package infra holds the adapters that connect the allocation core to the
// outside world: the Paho MQTT client, metrics sinks, the UDP telemetry
// broadcaster, Sentry and zerolog. Each subpackage implements an interface
// declared under core/ and is selected from configuration.
package infra
