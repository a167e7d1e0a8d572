// Package admin is the boundary to the hypervisor administrative API.
//
// The admin daemon owns the actual domains; vmgrid only observes it. The
// package exposes the two halves of that contract:
//
//   - a pull interface enumerating current domains, devices and labels
//     with their properties (Client.Domains, Client.Devices,
//     Client.Labels)
//   - a push interface delivering the lifecycle event stream
//     (Client.Events)
//
// Event ordering is only guaranteed per origin domain; events for
// different domains arrive in arbitrary interleaving and duplicates are
// possible. The mirror absorbs both through value-equality short-circuits
// and state machine validation, so this package performs no dedup.
//
// SocketClient is the concrete adapter speaking newline-delimited JSON
// over the daemon's unix socket. Everything behind the socket (starting
// or stopping domains, attaching hardware) is out of scope here; vmgrid
// never mutates upstream state.
package admin
