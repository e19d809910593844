// Package broker implements the control-session state machine and the
// in-memory session table it governs.
//
// The package implements:
//   - Machine: the single authority permitted to mutate session state,
//     exposing the five lifecycle operations (create, admin decision,
//     device status, timeout, connection closed)
//   - DeviceSender / AdminBroadcaster: the two narrow capabilities the
//     machine needs from the gateways
//   - DeviceFinder: resolution of device identifiers against the inventory
//
// All table mutations are serialized by one mutex held for the duration of
// each operation; outbound sends happen after the table has been updated and
// are never awaited, so a failed send can not leave the table inconsistent
// with what was already transmitted.
package broker
