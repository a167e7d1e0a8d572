// Package router consumes the admin event stream and applies each event
// to the mirror.
//
// Events arrive as (origin, kind, args) tuples. The router classifies
// every kind into a closed action set, resolves the target entity in the
// registry (pulling fresh data from the admin API when an event precedes
// the entity it concerns), and performs the mutation: a state
// transition, a property write, an assignment change, or a scoped
// reconciliation pass.
//
// # Ordering
//
// Handling is fanned out over a fixed set of workers. An event is
// assigned to a worker by hashing its serialization key (the scope of
// the entity it mutates), so events for the same scope are applied in
// arrival order while unrelated scopes proceed in parallel. There is
// never more than one in-flight mutation per scope.
//
// Individual handler failures are logged and dropped; the loop only
// stops when the event stream itself is lost, which is fatal and
// reported to the caller.
package router
