package router

import (
	"context"
	"fmt"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// Bootstrap performs the initial full synchronization: labels, then
// domains, then every reconciled device class of every domain. After it
// returns the mirror matches the admin daemon's view, whatever was in
// the registry beforehand.
//
// Bootstrap goes through the reconciler, so restarting against a
// populated registry converges instead of duplicating.
func (r *Router) Bootstrap(ctx context.Context) error {
	labels, err := r.client.Labels(ctx)
	if err != nil {
		return fmt.Errorf("router: enumerate labels: %w", err)
	}
	expected := make([]*entity.Entity, 0, len(labels))
	for _, info := range labels {
		expected = append(expected, admin.LabelEntity(info))
	}
	r.reconciler.Reconcile(mirror.Filter{Kind: entity.KindLabel}, expected)

	domains, err := r.client.Domains(ctx)
	if err != nil {
		return fmt.Errorf("router: enumerate domains: %w", err)
	}
	expected = expected[:0]
	for _, info := range domains {
		expected = append(expected, admin.DomainEntity(info))
	}
	r.reconciler.Reconcile(mirror.Filter{Kind: entity.KindDomain}, expected)

	for _, info := range domains {
		for _, class := range entity.ReconciledClasses {
			if err := r.syncDevices(ctx, info.QID, class); err != nil {
				return err
			}
		}
	}
	r.logger.Info("initial synchronization complete",
		"domains", len(domains), "labels", len(labels), "entities", r.registry.Count())
	return nil
}

func (r *Router) syncDevices(ctx context.Context, backend int, class entity.DeviceClass) error {
	infos, err := r.client.Devices(ctx, backend, class)
	if err != nil {
		return fmt.Errorf("router: enumerate %s devices of %d: %w", class, backend, err)
	}
	expected := make([]*entity.Entity, 0, len(infos))
	for _, info := range infos {
		expected = append(expected, admin.DeviceEntity(info))
	}
	r.reconciler.Reconcile(mirror.Filter{
		Kind:   entity.KindDevice,
		Prefix: entity.DeviceScope(backend, class),
	}, expected)
	return nil
}
