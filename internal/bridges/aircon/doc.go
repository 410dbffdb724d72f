// Package aircon bridges an MQTT bus to Broadlink-class air conditioners.
//
// The bridge subscribes to command topics of the shape
//
//	<prefix>/<capability>/<address>/set
//
// and mirrors device state on
//
//	<prefix>/<capability>/<address>
//
// Availability is announced on <prefix>/LWT: "online" (retained) once the bus
// connection is up, "offline" through the broker's last-will on an unclean
// disconnect, and "offline" explicitly on a clean Stop.
//
// # Components
//
//   - Router: parses command topics and builds state topics
//   - Dispatcher: decodes payloads and invokes exactly one adapter operation
//   - Publisher: diffs state against what was last published, publishes only
//     changed fields unless forced
//   - Bridge: discovery, per-device pollers, lifecycle state machine
//
// # Lifecycle
//
//	Uninitialized → Discovering → Ready | Degraded → ShuttingDown → Stopped
//
// Degraded means discovery found nothing. The bridge stays up and every
// command is answered with ErrUnknownAddress until a rediscovery succeeds.
//
// # Concurrency
//
// Each device has its own poller goroutine, the only writer of that device's
// published state. Commands never touch state; a successful command nudges the
// device's poller so the change is read back promptly. The device.Adapter
// serialises operations per device, so a slow device never blocks another.
package aircon
