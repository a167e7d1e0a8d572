package signal

import (
	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Broadcaster is the fan-out surface of the WebSocket hub. The hub
// buffers per client and drops on full buffers, so calls never block.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// WebSocket channels clients can subscribe to.
const (
	ChannelChanged  = "entity.changed"
	ChannelAdded    = "entity.added"
	ChannelRemoved  = "entity.removed"
	ChannelAttached = "device.attached"
	ChannelDetached = "device.detached"
	ChannelState    = "domain.state"
)

// BroadcastSink forwards mirror notifications to WebSocket clients.
type BroadcastSink struct {
	hub Broadcaster
}

// NewBroadcastSink creates a sink over the given hub.
func NewBroadcastSink(hub Broadcaster) *BroadcastSink {
	return &BroadcastSink{hub: hub}
}

// PropertiesChanged forwards a property change batch.
func (s *BroadcastSink) PropertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string) {
	s.hub.Broadcast(ChannelChanged, map[string]any{
		"identity":    string(id),
		"changed":     changed,
		"invalidated": invalidated,
	})
}

// Added forwards an entity addition.
func (s *BroadcastSink) Added(id entity.Identity) {
	s.hub.Broadcast(ChannelAdded, map[string]any{"identity": string(id)})
}

// Removed forwards an entity removal.
func (s *BroadcastSink) Removed(id entity.Identity) {
	s.hub.Broadcast(ChannelRemoved, map[string]any{"identity": string(id)})
}

// Attached forwards a device assignment.
func (s *BroadcastSink) Attached(id entity.Identity, frontend entity.Identity) {
	s.hub.Broadcast(ChannelAttached, map[string]any{
		"identity": string(id),
		"frontend": string(frontend),
	})
}

// Detached forwards a cleared assignment.
func (s *BroadcastSink) Detached(id entity.Identity, frontend entity.Identity) {
	s.hub.Broadcast(ChannelDetached, map[string]any{
		"identity": string(id),
		"frontend": string(frontend),
	})
}

// DomainState forwards a lifecycle signal.
func (s *BroadcastSink) DomainState(id entity.Identity, state entity.State) {
	s.hub.Broadcast(ChannelState, map[string]any{
		"identity": string(id),
		"state":    string(state),
	})
}
