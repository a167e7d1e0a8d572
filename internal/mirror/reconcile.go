package mirror

import (
	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Reconciler brings the registry into agreement with a freshly
// enumerated set of entities, used at startup and whenever a domain's
// device list changes.
//
// The pass is diff-based and idempotent: running it twice with the same
// expected set produces no additional notifications. Removals are always
// applied before additions, so a same-identity replacement never
// transiently coexists under the old and new snapshot.
type Reconciler struct {
	registry *Registry
	logger   Logger
}

// NewReconciler creates a reconciler operating on the given registry.
func NewReconciler(registry *Registry) *Reconciler {
	return &Reconciler{registry: registry, logger: noopLogger{}}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Reconcile converges the scope selected by the filter onto the expected
// entity set.
//
//  1. Entities registered in the scope but absent upstream are removed
//     (Removed notification each).
//  2. Expected entities already registered are updated field by field;
//     only changed fields are written and fields absent upstream are
//     removed, so an unchanged entity emits nothing. A retired device
//     assignment goes through Detach so the frontend and options clear
//     as a pair with the Detached signal.
//  3. Expected entities not yet registered are inserted whole (Added
//     notification each).
//
// Device snapshots may reference a frontend domain. A reference that
// does not currently resolve in the registry is treated as "no such
// frontend" and dropped from the snapshot rather than raised: the
// device-attach event racing this pass will converge it. An illegal
// state transition surfacing from an update is logged and skipped for
// the same reason; the next pass converges.
func (r *Reconciler) Reconcile(scope Filter, expected []*entity.Entity) {
	want := make(map[entity.Identity]*entity.Entity, len(expected))
	for _, e := range expected {
		want[e.Identity] = e
	}

	// Removals first.
	removed := 0
	for _, known := range r.registry.List(scope) {
		if _, ok := want[known.Identity]; !ok {
			r.registry.Remove(known.Identity)
			removed++
		}
	}

	added, updated := 0, 0
	for _, e := range expected {
		snapshot, stripped := r.resolveReferences(e)

		cur, err := r.registry.Get(e.Identity)
		if err != nil {
			r.registry.Put(e.Identity, e.Kind, snapshot)
			added++
			continue
		}

		changed, invalidated := snapshot.Diff(cur.Snapshot)
		for name, value := range changed {
			if _, err := r.registry.SetProperty(e.Identity, name, value); err != nil {
				r.logger.Warn("reconcile update skipped",
					"identity", e.Identity, "property", name, "error", err)
			}
		}
		dropAssignment := false
		for _, name := range invalidated {
			switch name {
			case entity.PropFrontendDomain, entity.PropAttachOptions:
				dropAssignment = true
			default:
				if _, err := r.registry.RemoveProperty(e.Identity, name); err != nil {
					r.logger.Warn("reconcile removal skipped",
						"identity", e.Identity, "property", name, "error", err)
				}
			}
		}
		// A stripped assignment is a reference that could not resolve,
		// not a detachment reported upstream; the mirrored assignment
		// stays until a detach event or a resolvable pass clears it.
		if dropAssignment && !stripped {
			if err := r.registry.Detach(e.Identity); err != nil {
				r.logger.Warn("reconcile detach skipped",
					"identity", e.Identity, "error", err)
			}
		}
		if len(changed) > 0 || len(invalidated) > 0 {
			updated++
		}
	}

	if removed > 0 || added > 0 || updated > 0 {
		r.logger.Info("reconciled scope",
			"kind", scope.Kind, "prefix", scope.Prefix,
			"removed", removed, "added", added, "updated", updated)
	}
}

// resolveReferences returns the entity snapshot with unresolvable
// entity references stripped, and whether anything was stripped. For a
// device with a dangling frontend_domain the whole assignment (frontend
// and options) is dropped, never one half of it.
func (r *Reconciler) resolveReferences(e *entity.Entity) (entity.Snapshot, bool) {
	snapshot := e.Snapshot.Clone()

	front, ok := snapshot[entity.PropFrontendDomain].AsRef()
	if !ok {
		return snapshot, false
	}
	if _, err := r.registry.Get(front); err != nil {
		r.logger.Debug("dropping unresolvable frontend reference",
			"identity", e.Identity, "frontend", front)
		delete(snapshot, entity.PropFrontendDomain)
		delete(snapshot, entity.PropAttachOptions)
		return snapshot, true
	}
	return snapshot, false
}
