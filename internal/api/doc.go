// Package api implements the optional HTTP status API and WebSocket stream
// for the bridge.
//
// This package provides:
//   - Read-only endpoints for bridge health, discovered devices and state history
//   - An on-demand rediscovery trigger
//   - A WebSocket hub broadcasting device state changes as they are published
//   - The Prometheus scrape endpoint
//
// # Architecture
//
// The API never talks to devices or the bus. Commands still flow only through
// MQTT set topics; the server reads the bridge's view of the registry and the
// publisher's last-known state. The hub is registered as the bridge's state
// observer, so every snapshot that reaches the bus is also pushed to
// subscribed WebSocket clients on the "device.state_changed" channel.
//
// # Graceful Degradation
//
// The server keeps answering while the broker is unreachable or the bridge is
// Degraded; /api/v1/health reports both conditions. History endpoints answer
// 503 when the state history database is disabled.
package api
