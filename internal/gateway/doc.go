// Package gateway terminates the broker's websocket connections.
//
// The package implements:
//   - CommGateway: the device-side channel; decodes inbound envelopes,
//     dispatches them to the state machine and provides the machine's
//     send-to-device capability
//   - AdminGateway: the admin-side channel; replays in-flight sessions to
//     newly joined admins and fans machine events out to every admin
//   - NotifyGateway: the change-notification channel mirroring inventory
//     mutations to dashboard clients
//   - Router: the single entry point for upgrade requests, demultiplexing
//     by path and terminating anything it does not recognize
package gateway
