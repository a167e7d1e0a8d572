// Package entity defines the object model mirrored by vmgrid.
//
// An Entity is one mirrored object: a hypervisor domain, a device exported
// by a domain, or a label. Each entity carries a stable Identity (its key
// in the mirror registry) and a Snapshot, a property-name to Value mapping
// describing its last observed upstream state.
//
// # Key Types
//
//   - Identity: immutable path-style key ("domains/7",
//     "devices/block/3/sda", "labels/red")
//   - Value: tagged value type (string, bool, int, map, entity reference)
//   - Snapshot: property name to Value mapping with Clone and Diff
//   - State: the domain lifecycle state with its transition rules
//
// The lifecycle state machine lives here because it is a pure property of
// the model: CanTransition has no side effects and no dependencies. The
// registry consults it before accepting a state write.
//
// # Thread Safety
//
// All types in this package are plain values. Sharing is managed by the
// mirror registry, which hands out deep copies; see mirror.Registry.
package entity
