// Package mirror owns the in-memory registry of mirrored entities and
// keeps it observable.
//
// The registry is the single source of truth for entity snapshots. Every
// mutation that actually changes a value is paired with exactly one
// notification through the ChangeNotifier; a no-op write (same value,
// rejected transition) emits nothing. Notification consumers never mutate
// snapshots; they read back through the View.
//
// # Architecture
//
//	┌────────────┐   events    ┌────────────┐   mutations   ┌────────────┐
//	│  router    │────────────▶│  Registry  │──────────────▶│  Change-   │
//	│            │  reconcile  │ Reconciler │  on change    │  Notifier  │
//	└────────────┘             └────────────┘               └─────┬──────┘
//	                                 ▲                            │ fan-out
//	                            read only                         ▼
//	                           ┌────────────┐               ┌────────────┐
//	                           │    View    │               │ sinks:     │
//	                           │ (HTTP API) │               │ mqtt, ws   │
//	                           └────────────┘               └────────────┘
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. The internal lock is
// held only for the duration of a single call, never across a
// reconciliation pass, so unrelated identities are not blocked.
package mirror
