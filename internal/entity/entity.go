package entity

// Entity is one mirrored object: a domain, a device, or a label.
//
// Identity is immutable for the entity's lifetime and doubles as the
// registry key. Snapshot holds the last observed property values; it is
// owned exclusively by the registry entry and mutated only through the
// registry.
type Entity struct {
	Identity Identity `json:"identity"`
	Kind     Kind     `json:"kind"`
	Snapshot Snapshot `json:"snapshot"`
}

// Device assignment property names. Present iff the device is attached
// to a frontend domain; the two are always set and cleared together.
const (
	PropFrontendDomain = "frontend_domain"
	PropAttachOptions  = "attach_options"
)

// DeepCopy returns a complete independent copy of the entity so cache
// entries can be handed out without aliasing registry-owned state.
func (e *Entity) DeepCopy() *Entity {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Snapshot = e.Snapshot.Clone()
	return &cpy
}

// State returns the lifecycle state recorded in the snapshot, or "" when
// no state property is present (non-domain entities, fresh entries).
func (e *Entity) State() State {
	if e == nil {
		return ""
	}
	s, ok := e.Snapshot[PropState].AsString()
	if !ok {
		return ""
	}
	return State(s)
}

// Assignment returns the frontend domain the device is attached to and
// its attach options. ok is false when the device is not attached.
func (e *Entity) Assignment() (frontend Identity, options map[string]Value, ok bool) {
	if e == nil {
		return "", nil, false
	}
	ref, refOK := e.Snapshot[PropFrontendDomain].AsRef()
	if !refOK {
		return "", nil, false
	}
	opts, _ := e.Snapshot[PropAttachOptions].AsMap()
	return ref, opts, true
}
