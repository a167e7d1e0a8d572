// Package history keeps an append-only journal of mirror changes in
// SQLite.
//
// The journal records domain lifecycle transitions and structural
// changes (entities appearing and disappearing, device assignments).
// Property-level changes are deliberately not journalled; stats events
// alone would grow the table by thousands of rows per hour, and the
// time-series store is the right home for those.
//
// The journal is a sink like any other: the mirror's notifier feeds it,
// a single writer goroutine does the inserts, and a full buffer drops
// entries rather than stalling event handling.
package history
