package router

import (
	"strings"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// action is the closed set of things an event can ask the mirror to do.
type action uint8

const (
	actionUnknown action = iota
	actionIgnore
	actionDomainAdd
	actionDomainDelete
	actionStateChange
	actionPropertySet
	actionDeviceListChange
	actionDeviceAttach
	actionDeviceDetach
	actionStats
)

// classified is an admin event resolved into an action plus the
// arguments the handler for that action needs.
type classified struct {
	action action
	event  admin.Event

	// actionStateChange only.
	state entity.State
	// failedIfStarting marks the shutdown rule: a domain that stops
	// while still starting never ran, so it lands in Failed instead of
	// Halted.
	failedIfStarting bool

	// actionPropertySet only.
	property string

	// device actions only.
	class entity.DeviceClass
}

// ignoredKinds are chatter the admin daemon emits around operations the
// mirror already models through other events. They are dropped without
// logging noise.
var ignoredKinds = map[string]bool{
	"domain-load":            true,
	"domain-is-fully-usable": true,
}

// classify maps a raw admin event onto its action. Unknown kinds come
// back as actionUnknown and are logged and dropped by the caller.
func classify(ev admin.Event) classified {
	c := classified{event: ev}

	if ignoredKinds[ev.Kind] || strings.HasPrefix(ev.Kind, "property-pre-set:") {
		c.action = actionIgnore
		return c
	}

	switch ev.Kind {
	case "domain-add":
		c.action = actionDomainAdd
	case "domain-delete":
		c.action = actionDomainDelete
	case "domain-spawn":
		c.action = actionStateChange
		c.state = entity.StateStarting
	case "domain-start":
		c.action = actionStateChange
		c.state = entity.StateStarted
	case "domain-pre-shutdown":
		c.action = actionStateChange
		c.state = entity.StateHalting
	case "domain-shutdown":
		c.action = actionStateChange
		c.state = entity.StateHalted
		c.failedIfStarting = true
	case "domain-start-failed":
		c.action = actionStateChange
		c.state = entity.StateFailed
	case "vm-stats":
		c.action = actionStats
	default:
		c.classifyPrefixed(ev.Kind)
	}
	return c
}

func (c *classified) classifyPrefixed(kind string) {
	if name, ok := strings.CutPrefix(kind, "property-set:"); ok {
		c.action = actionPropertySet
		c.property = name
		return
	}
	if class, ok := strings.CutPrefix(kind, "device-list-change:"); ok {
		c.action = actionDeviceListChange
		c.class = entity.DeviceClass(class)
		return
	}
	if class, ok := strings.CutPrefix(kind, "device-attach:"); ok {
		c.action = actionDeviceAttach
		c.class = entity.DeviceClass(class)
		return
	}
	if class, ok := strings.CutPrefix(kind, "device-detach:"); ok {
		c.action = actionDeviceDetach
		c.class = entity.DeviceClass(class)
		return
	}
	c.action = actionUnknown
}

// serializationKey is the scope whose mutations must stay ordered. Two
// events with the same key are handled by the same worker, in arrival
// order.
//
// Domain events key on the originating domain. Device events key on the
// backend side of the device argument so that attach, detach and
// list-change for the same backend scope never race each other.
func (c classified) serializationKey() string {
	switch c.action {
	case actionDeviceAttach, actionDeviceDetach:
		backend, _, ok := splitDeviceArg(c.event.Args["device"])
		if ok {
			return "devices/" + string(c.class) + "/" + backend
		}
		return "devices/" + string(c.class) + "/" + c.event.Origin
	case actionDeviceListChange:
		return "devices/" + string(c.class) + "/" + c.event.Origin
	default:
		return "domains/" + subjectName(c.event)
	}
}

// subjectName resolves which domain an event is about. Most events name
// it as their origin; add and delete events concern a domain that is not
// the origin and carry it in the vm argument instead.
func subjectName(ev admin.Event) string {
	if vm := ev.Args["vm"]; vm != "" {
		return vm
	}
	return ev.Origin
}

// splitDeviceArg splits the "backend:ident" form the admin daemon uses
// for device arguments.
func splitDeviceArg(arg string) (backend, ident string, ok bool) {
	backend, ident, ok = strings.Cut(arg, ":")
	if !ok || backend == "" || ident == "" {
		return "", "", false
	}
	return backend, ident, true
}

// attachOptionPrefix marks flattened attach option arguments on
// device-attach events.
const attachOptionPrefix = "option."

// attachOptions collects the flattened option arguments of a
// device-attach event back into an options map.
func attachOptions(args map[string]string) map[string]entity.Value {
	options := make(map[string]entity.Value)
	for k, v := range args {
		if name, ok := strings.CutPrefix(k, attachOptionPrefix); ok {
			options[name] = admin.WireValue(v)
		}
	}
	return options
}
