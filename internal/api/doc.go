// Package api provides the read-only HTTP and WebSocket surface over
// the vmgrid mirror.
//
// REST endpoints expose the mirror's current entity snapshots (domains,
// devices, labels) and the history journal. Nothing in this package can
// mutate the mirror; all writes flow from the admin event stream through
// the router.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// WebSocket clients subscribe to signal channels (entity.changed,
// domain.state, ...) and receive the same signals the MQTT sink
// publishes, fed through the hub by signal.BroadcastSink.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
