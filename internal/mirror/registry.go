package mirror

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Filter restricts List and ListAll results.
//
// A zero Filter matches every entity. Kind restricts by entity variant;
// Prefix restricts by identity key prefix and is how device scopes
// (one backend domain, one device class) are addressed.
type Filter struct {
	Kind   entity.Kind
	Prefix entity.Identity
}

func (f Filter) matches(id entity.Identity) bool {
	if f.Kind != "" && id.Kind() != f.Kind {
		return false
	}
	if f.Prefix != "" && !id.HasPrefix(f.Prefix) {
		return false
	}
	return true
}

// Registry is the exclusive owner of all entity snapshots.
//
// Every mutating method pairs the mutation with a notification through
// the ChangeNotifier if, and only if, a value actually changed. The
// internal lock is held per call, never across multiple operations.
type Registry struct {
	mu       sync.RWMutex
	entries  map[entity.Identity]*entity.Entity
	notifier *ChangeNotifier
	logger   Logger
}

// NewRegistry creates an empty registry emitting through notifier.
// A nil notifier is valid; mutations then happen silently.
func NewRegistry(notifier *ChangeNotifier) *Registry {
	return &Registry{
		entries:  make(map[entity.Identity]*entity.Entity),
		notifier: notifier,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Get retrieves an entity by identity.
// Returns ErrNotFound if the identity is not registered.
// The returned entity is a deep copy; callers can safely modify it.
func (r *Registry) Get(id entity.Identity) (*entity.Entity, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.DeepCopy(), nil
}

// GetProperty returns a single property value.
// Returns ErrNotFound for an unknown identity and ErrUnknownProperty for
// a property the entity does not carry.
func (r *Registry) GetProperty(id entity.Identity, name string) (entity.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return entity.Value{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v, ok := e.Snapshot[name]
	if !ok {
		return entity.Value{}, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, name, id)
	}
	return v, nil
}

// Count returns the number of registered entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns deep copies of all entities matching the filter, ordered
// by identity so reconciliation passes and tests are deterministic.
func (r *Registry) List(f Filter) []*entity.Entity {
	r.mu.RLock()
	out := make([]*entity.Entity, 0)
	for id, e := range r.entries {
		if f.matches(id) {
			out = append(out, e.DeepCopy())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Put inserts or fully replaces an entry. Used for initial enumeration
// and full replacement only; partial updates go through SetProperty.
//
// A new entry emits Added. A replacement emits one PropertiesChanged
// batch with the field-level diff against the previous snapshot, or
// nothing when the snapshots are equal.
func (r *Registry) Put(id entity.Identity, kind entity.Kind, snapshot entity.Snapshot) {
	e := &entity.Entity{Identity: id, Kind: kind, Snapshot: snapshot.Clone()}

	r.mu.Lock()
	prev, existed := r.entries[id]
	r.entries[id] = e
	r.mu.Unlock()

	if !existed {
		r.logger.Debug("entity registered", "identity", id, "kind", kind)
		r.notifier.added(id)
		return
	}

	changed, invalidated := e.Snapshot.Diff(prev.Snapshot)
	if len(changed) > 0 || len(invalidated) > 0 {
		r.notifier.propertiesChanged(id, changed, invalidated)
	}
}

// SetProperty updates a single property.
//
// For the state property of a domain entity the write is validated
// against the lifecycle state machine first and rejected with
// ErrIllegalTransition when illegal; the recorded state is preserved.
//
// Returns changed=false when the new value equals the old value; no
// notification is emitted in that case.
func (r *Registry) SetProperty(id entity.Identity, name string, value entity.Value) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if old, ok := e.Snapshot[name]; ok && old.Equal(value) {
		r.mu.Unlock()
		r.logger.Debug("property unchanged", "identity", id, "property", name)
		return false, nil
	}

	if name == entity.PropState && e.Kind == entity.KindDomain {
		if err := r.checkTransition(e, value); err != nil {
			r.mu.Unlock()
			return false, err
		}
	}

	e.Snapshot[name] = value
	r.mu.Unlock()

	r.notifier.propertiesChanged(id, entity.Snapshot{name: value}, nil)
	return true, nil
}

// RemoveProperty deletes a single property and emits one
// PropertiesChanged batch invalidating it. Removing a property the
// entity does not carry returns changed=false without a notification.
// The domain state property cannot be removed; a domain always carries
// a lifecycle state.
func (r *Registry) RemoveProperty(id entity.Identity, name string) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if name == entity.PropState && e.Kind == entity.KindDomain {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s: state cannot be removed", ErrIllegalTransition, id)
	}
	if _, ok := e.Snapshot[name]; !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(e.Snapshot, name)
	r.mu.Unlock()

	r.notifier.propertiesChanged(id, nil, []string{name})
	return true, nil
}

// checkTransition validates a state write. Caller holds the lock.
func (r *Registry) checkTransition(e *entity.Entity, value entity.Value) error {
	raw, ok := value.AsString()
	if !ok {
		return fmt.Errorf("%w: %s: state value must be a string", ErrIllegalTransition, e.Identity)
	}
	next, err := entity.ParseState(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalTransition, e.Identity, err)
	}
	if cur := e.State(); !entity.CanTransition(cur, next) {
		return fmt.Errorf("%w: %s: %s -> %s", ErrIllegalTransition, e.Identity, cur, next)
	}
	return nil
}

// Attach records a device assignment: frontend domain and attach
// options are set together and one PropertiesChanged batch plus an
// Attached signal are emitted. Re-attaching with identical values is a
// no-op.
func (r *Registry) Attach(id entity.Identity, frontend entity.Identity, options map[string]entity.Value) error {
	front := entity.Ref(frontend)
	opts := entity.MapOf(options)

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	changed := make(entity.Snapshot, 2)
	if old, ok := e.Snapshot[entity.PropFrontendDomain]; !ok || !old.Equal(front) {
		changed[entity.PropFrontendDomain] = front
	}
	if old, ok := e.Snapshot[entity.PropAttachOptions]; !ok || !old.Equal(opts) {
		changed[entity.PropAttachOptions] = opts
	}
	for name, v := range changed {
		e.Snapshot[name] = v
	}
	r.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	r.notifier.propertiesChanged(id, changed, nil)
	r.notifier.attached(id, frontend)
	return nil
}

// Detach clears a device assignment. Frontend domain and attach options
// are removed together, never one without the other, and one
// PropertiesChanged batch invalidating both plus a Detached signal are
// emitted. Detaching an unassigned device is a no-op.
func (r *Registry) Detach(id entity.Identity) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	frontend, _, assigned := e.Assignment()
	if !assigned {
		r.mu.Unlock()
		r.logger.Debug("detach on unassigned device", "identity", id)
		return nil
	}
	delete(e.Snapshot, entity.PropFrontendDomain)
	delete(e.Snapshot, entity.PropAttachOptions)
	r.mu.Unlock()

	r.notifier.propertiesChanged(id, nil, []string{entity.PropAttachOptions, entity.PropFrontendDomain})
	r.notifier.detached(id, frontend)
	return nil
}

// Remove deregisters an entity and emits Removed.
//
// Removing a domain cascades: every device entity exported by that
// domain is removed first, each with its own Removed notification, and
// the domain itself last.
func (r *Registry) Remove(id entity.Identity) bool {
	var cascade []entity.Identity
	if qid, err := id.Domain(); err == nil {
		for _, dev := range r.List(Filter{Kind: entity.KindDevice}) {
			if dev.Identity.BelongsToDomain(qid) {
				cascade = append(cascade, dev.Identity)
			}
		}
	}
	for _, devID := range cascade {
		r.removeOne(devID)
	}
	return r.removeOne(id)
}

func (r *Registry) removeOne(id entity.Identity) bool {
	r.mu.Lock()
	_, existed := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("entity deregistered", "identity", id)
		r.notifier.removed(id)
	}
	return existed
}
