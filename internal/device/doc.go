// Package device models the climate-control appliances served by the bridge.
//
// This package manages:
//   - Device descriptors (immutable identity captured at discovery time)
//   - The device registry keyed by hardware address, with a read-only View
//   - Device families: temperature bands, mode and fan-speed vocabularies
//   - The per-device Adapter that normalises the device-control library
//   - Local state history persistence (SQLite)
//
// # Architecture
//
// The device-control library (wire protocol, encryption handshake) is an
// external collaborator consumed through the Library and Handle interfaces.
// Every call to a physical device goes through an Adapter, which validates
// values against the device family before any network traffic and serialises
// operations per device:
//
//	Dispatcher / Poller → Adapter (validate, translate, lock, timeout) → Handle → device
//
// # Device Families
//
// Support for another appliance class is added by registering a Family record;
// neither the adapter nor the bridge needs to change.
//
// # Thread Safety
//
// Registry and Adapter are safe for concurrent use. An Adapter never runs two
// operations against the same device at the same time.
package device
