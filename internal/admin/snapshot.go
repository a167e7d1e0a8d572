package admin

import (
	"strconv"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// DomainEntity builds the mirror entity for an enumerated domain.
//
// The raw power state is translated into the lifecycle state once, here,
// at snapshot-build time; the mirror itself never sees power states.
// Label and netvm become entity references.
func DomainEntity(info DomainInfo) *entity.Entity {
	snapshot := stringProperties(info.Properties)
	snapshot["qid"] = entity.Int(int64(info.QID))
	snapshot["name"] = entity.String(info.Name)
	snapshot[entity.PropState] = entity.String(string(entity.StateFromPower(info.Power)))
	if info.Label != "" {
		snapshot["label"] = entity.Ref(entity.LabelIdentity(info.Label))
	}
	if info.NetVM != nil {
		snapshot["netvm"] = entity.Ref(entity.DomainIdentity(*info.NetVM))
	}
	return &entity.Entity{
		Identity: entity.DomainIdentity(info.QID),
		Kind:     entity.KindDomain,
		Snapshot: snapshot,
	}
}

// DeviceEntity builds the mirror entity for an enumerated device. An
// assignment reported by enumeration becomes the frontend_domain
// reference plus attach_options map; the reconciler drops the pair again
// if the frontend does not resolve.
func DeviceEntity(info DeviceInfo) *entity.Entity {
	snapshot := stringProperties(info.Properties)
	snapshot["ident"] = entity.String(info.Ident)
	snapshot["dev_class"] = entity.String(string(info.Class))
	snapshot["backend_domain"] = entity.Ref(entity.DomainIdentity(info.BackendQID))
	if info.Description != "" {
		snapshot["description"] = entity.String(info.Description)
	}
	if a := info.Assignment; a != nil {
		snapshot[entity.PropFrontendDomain] = entity.Ref(entity.DomainIdentity(a.FrontendQID))
		snapshot[entity.PropAttachOptions] = entity.MapOf(AttachOptions(a.Options))
	}
	return &entity.Entity{
		Identity: entity.DeviceIdentity(info.BackendQID, info.Class, info.Ident),
		Kind:     entity.KindDevice,
		Snapshot: snapshot,
	}
}

// LabelEntity builds the mirror entity for a label.
func LabelEntity(info LabelInfo) *entity.Entity {
	return &entity.Entity{
		Identity: entity.LabelIdentity(info.Name),
		Kind:     entity.KindLabel,
		Snapshot: entity.Snapshot{
			"name":  entity.String(info.Name),
			"color": entity.String(info.Color),
			"icon":  entity.String(info.Icon),
			"index": entity.Int(int64(info.Index)),
		},
	}
}

// AttachOptions converts a wire options mapping into property values.
// Booleans and integers keep their type; everything else stays a string.
func AttachOptions(options map[string]string) map[string]entity.Value {
	out := make(map[string]entity.Value, len(options))
	for k, v := range options {
		out[k] = WireValue(v)
	}
	return out
}

// stringProperties converts a wire property mapping into a snapshot.
func stringProperties(props map[string]string) entity.Snapshot {
	snapshot := make(entity.Snapshot, len(props)+6)
	for k, v := range props {
		snapshot[k] = WireValue(v)
	}
	return snapshot
}

// WireValue infers a Value from its wire string form. The admin wire
// format reports every argument as a string; bools and integers are
// recovered here so the value-equality short-circuit compares like with
// like.
func WireValue(s string) entity.Value {
	switch s {
	case "True", "true":
		return entity.Bool(true)
	case "False", "false":
		return entity.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return entity.Int(i)
	}
	return entity.String(s)
}
