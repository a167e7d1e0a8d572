package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// findDomainByName scans the mirrored domains for one with the given
// name. The domain population is small and the scan runs on a read
// snapshot, so no name index is kept.
func (r *Router) findDomainByName(name string) (*entity.Entity, bool) {
	for _, e := range r.registry.List(mirror.Filter{Kind: entity.KindDomain}) {
		if n, ok := e.Snapshot["name"].AsString(); ok && n == name {
			return e, true
		}
	}
	return nil, false
}

// ensureDomain resolves a domain by name, pulling it from the admin API
// and inserting it when an event arrives before the domain it concerns.
func (r *Router) ensureDomain(ctx context.Context, name string) (*entity.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: missing domain name", ErrMalformedEvent)
	}
	if e, ok := r.findDomainByName(name); ok {
		return e, nil
	}
	info, err := r.client.DomainByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownOrigin, name, err)
	}
	e := admin.DomainEntity(info)
	r.registry.Put(e.Identity, e.Kind, e.Snapshot)
	entry, err := r.registry.Get(e.Identity)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Router) handleDomainAdd(ctx context.Context, ev admin.Event) error {
	name := subjectName(ev)
	if name == "" {
		return fmt.Errorf("%w: domain-add without vm", ErrMalformedEvent)
	}
	info, err := r.client.DomainByName(ctx, name)
	if err != nil {
		return fmt.Errorf("fetch added domain %q: %w", name, err)
	}
	e := admin.DomainEntity(info)
	r.registry.Put(e.Identity, e.Kind, e.Snapshot)
	r.logger.Info("domain added", "domain", name, "qid", info.QID)
	return nil
}

func (r *Router) handleDomainDelete(ev admin.Event) error {
	name := subjectName(ev)
	if name == "" {
		return fmt.Errorf("%w: domain-delete without vm", ErrMalformedEvent)
	}
	e, ok := r.findDomainByName(name)
	if !ok {
		// Already gone, deletions are idempotent.
		return nil
	}
	r.registry.Remove(e.Identity)
	r.logger.Info("domain removed", "domain", name)
	return nil
}

func (r *Router) handleStateChange(ctx context.Context, c classified) error {
	e, err := r.ensureDomain(ctx, subjectName(c.event))
	if err != nil {
		return err
	}
	next := c.state
	if c.failedIfStarting && e.State() == entity.StateStarting {
		// The domain went away while it was still coming up. It never
		// reached Started, so it ends in Failed rather than Halted.
		next = entity.StateFailed
	}
	_, err = r.registry.SetProperty(e.Identity, entity.PropState, entity.String(string(next)))
	if errors.Is(err, mirror.ErrIllegalTransition) {
		r.logger.Debug("state change rejected",
			"domain", c.event.Origin, "from", string(e.State()), "to", string(next))
		return nil
	}
	return err
}

func (r *Router) handlePropertySet(ctx context.Context, c classified) error {
	newvalue, ok := c.event.Args["newvalue"]
	if !ok {
		return fmt.Errorf("%w: property-set:%s without newvalue", ErrMalformedEvent, c.property)
	}
	e, err := r.ensureDomain(ctx, subjectName(c.event))
	if err != nil {
		return err
	}
	value, err := r.propertyValue(ctx, c.property, newvalue)
	if err != nil {
		return err
	}
	_, err = r.registry.SetProperty(e.Identity, c.property, value)
	return err
}

// propertyValue converts a property-set argument into its mirrored
// form. Reference-valued properties store the target identity, the same
// form enumeration produces, so the equality short-circuit compares
// like with like across both update paths. An empty argument means the
// property was cleared and stays a plain string.
func (r *Router) propertyValue(ctx context.Context, property, raw string) (entity.Value, error) {
	if raw == "" {
		return entity.String(""), nil
	}
	switch property {
	case "label":
		return entity.Ref(entity.LabelIdentity(raw)), nil
	case "netvm":
		// The wire reports a detached netvm as "none" rather than an
		// empty argument.
		if raw == "none" || raw == "None" {
			return entity.String(""), nil
		}
		target, err := r.ensureDomain(ctx, raw)
		if err != nil {
			return entity.Value{}, err
		}
		return entity.Ref(target.Identity), nil
	}
	return admin.WireValue(raw), nil
}

// handleDeviceListChange re-enumerates one backend's devices of one
// class and reconciles the mirror's scope against the result. This is
// the convergence path: whatever individual events were missed or
// duplicated, the scope matches the enumeration afterwards.
func (r *Router) handleDeviceListChange(ctx context.Context, c classified) error {
	backend, err := r.ensureDomain(ctx, c.event.Origin)
	if err != nil {
		return err
	}
	qid, err := backend.Identity.Domain()
	if err != nil {
		return err
	}
	infos, err := r.client.Devices(ctx, qid, c.class)
	if err != nil {
		return fmt.Errorf("enumerate %s devices of %q: %w", c.class, c.event.Origin, err)
	}
	expected := make([]*entity.Entity, 0, len(infos))
	for _, info := range infos {
		expected = append(expected, admin.DeviceEntity(info))
	}
	r.reconciler.Reconcile(mirror.Filter{
		Kind:   entity.KindDevice,
		Prefix: entity.DeviceScope(qid, c.class),
	}, expected)
	return nil
}

// resolveDevice turns the "backend:ident" device argument into the
// mirrored device identity.
func (r *Router) resolveDevice(c classified) (entity.Identity, error) {
	arg := c.event.Args["device"]
	backend, ident, ok := splitDeviceArg(arg)
	if !ok {
		return "", fmt.Errorf("%w: bad device argument %q", ErrMalformedEvent, arg)
	}
	e, ok := r.findDomainByName(backend)
	if !ok {
		return "", fmt.Errorf("%w: backend %q", ErrUnknownOrigin, backend)
	}
	qid, err := e.Identity.Domain()
	if err != nil {
		return "", err
	}
	return entity.DeviceIdentity(qid, c.class, ident), nil
}

func (r *Router) handleDeviceAttach(c classified) error {
	id, err := r.resolveDevice(c)
	if err != nil {
		return err
	}
	frontend, ok := r.findDomainByName(c.event.Origin)
	if !ok {
		// Attachment to a domain the mirror does not know is dropped;
		// the next list-change for the scope reports it again.
		r.logger.Debug("attach with unresolved frontend dropped",
			"device", string(id), "frontend", c.event.Origin)
		return nil
	}
	return r.registry.Attach(id, frontend.Identity, attachOptions(c.event.Args))
}

func (r *Router) handleDeviceDetach(c classified) error {
	id, err := r.resolveDevice(c)
	if err != nil {
		return err
	}
	return r.registry.Detach(id)
}

// statsRename maps wire stat names onto mirrored property names.
var statsRename = map[string]string{
	"memory_kb": "memory_usage",
}

// handleStats applies the periodic runtime counters to the mirrored
// domain and forwards them to the stats recorder. Only counters whose
// value actually moved produce notifications; the registry's equality
// short-circuit takes care of that.
func (r *Router) handleStats(ctx context.Context, ev admin.Event) error {
	e, err := r.ensureDomain(ctx, subjectName(ev))
	if err != nil {
		return err
	}
	fields := make(map[string]int64, len(ev.Args))
	for name, raw := range ev.Args {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if renamed, ok := statsRename[name]; ok {
			name = renamed
		}
		fields[name] = v
		if _, err := r.registry.SetProperty(e.Identity, name, entity.Int(v)); err != nil {
			return err
		}
	}
	if r.stats != nil && len(fields) > 0 {
		if name, ok := e.Snapshot["name"].AsString(); ok {
			r.stats.RecordDomainStats(name, fields)
		}
	}
	return nil
}
