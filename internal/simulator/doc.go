// Package simulator is an in-memory device-control library.
//
// It implements device.Library for virtual air conditioners declared in
// configuration, so the bridge can run end to end without hardware. Handles
// keep their state behind a mutex and report status in the same loosely
// typed map shape as the real library.
package simulator
