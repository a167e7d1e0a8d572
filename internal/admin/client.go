package admin

import (
	"context"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Client is the administrative API consumed by the mirror.
//
// Implementations must be safe for concurrent use. Enumeration calls may
// be issued from several router workers at once while the event stream
// is being read.
type Client interface {
	// Domains enumerates all current domains with their properties.
	Domains(ctx context.Context) ([]DomainInfo, error)

	// Domain fetches a single domain by its numeric id.
	// Returns ErrNoSuchEntity if the admin daemon does not know it.
	Domain(ctx context.Context, qid int) (DomainInfo, error)

	// DomainByName fetches a single domain by name. Events identify their
	// origin by name; this resolves it for handlers that need fresh data.
	DomainByName(ctx context.Context, name string) (DomainInfo, error)

	// Devices enumerates the devices of one class exported by one
	// backend domain.
	Devices(ctx context.Context, backend int, class entity.DeviceClass) ([]DeviceInfo, error)

	// Labels enumerates the fixed label set.
	Labels(ctx context.Context) ([]LabelInfo, error)

	// Events returns the lifecycle event stream. The channel is closed
	// when the stream ends; a stream ending for any reason other than
	// context cancellation is a fatal transport loss and is reported
	// through Err.
	Events(ctx context.Context) (<-chan Event, error)

	// Err reports why the event stream terminated, nil before it has.
	Err() error
}

// Event is one lifecycle event from the admin daemon.
//
// Origin names the domain the event concerns, or is empty for
// source-wide events. Kind is the raw event kind string; the router owns
// its classification. Args carries the event's argument mapping.
type Event struct {
	Origin string            `json:"origin,omitempty"`
	Kind   string            `json:"kind"`
	Args   map[string]string `json:"args,omitempty"`
}

// DomainInfo is the enumerated snapshot of one domain.
type DomainInfo struct {
	QID   int    `json:"qid"`
	Name  string `json:"name"`
	Power string `json:"power"` // raw power state, e.g. "Running"
	Label string `json:"label,omitempty"`
	NetVM *int   `json:"netvm,omitempty"` // qid of the network provider

	// Properties carries the remaining reported properties verbatim.
	Properties map[string]string `json:"properties,omitempty"`
}

// DeviceInfo is the enumerated snapshot of one device.
type DeviceInfo struct {
	BackendQID  int                `json:"backend_qid"`
	Class       entity.DeviceClass `json:"class"`
	Ident       string             `json:"ident"`
	Description string             `json:"description,omitempty"`

	// Assignment is non-nil when the device is attached to a frontend
	// domain.
	Assignment *Assignment `json:"assignment,omitempty"`

	Properties map[string]string `json:"properties,omitempty"`
}

// Assignment records a device attachment reported by enumeration.
type Assignment struct {
	FrontendQID int               `json:"frontend_qid"`
	Options     map[string]string `json:"options,omitempty"`
}

// LabelInfo is the enumerated snapshot of one label.
type LabelInfo struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Index int    `json:"index"`
}
