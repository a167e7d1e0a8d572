package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a mirrored entity.
type Kind string

// Entity kinds.
const (
	KindDomain Kind = "domain"
	KindDevice Kind = "device"
	KindLabel  Kind = "label"
)

// DeviceClass is the hypervisor device class a device entity belongs to.
type DeviceClass string

// Device classes exported by the admin API. Mic is not implemented
// upstream yet; it is accepted but never enumerated.
const (
	ClassBlock DeviceClass = "block"
	ClassPCI   DeviceClass = "pci"
	ClassUSB   DeviceClass = "usb"
	ClassMic   DeviceClass = "mic"
)

// ReconciledClasses are the device classes enumerated and reconciled at
// startup and on device-list-change events.
var ReconciledClasses = []DeviceClass{ClassBlock, ClassPCI, ClassUSB}

// Identity segment prefixes.
const (
	segmentDomains = "domains"
	segmentDevices = "devices"
	segmentLabels  = "labels"
)

// Identity is the immutable registry key of a mirrored entity.
//
// It is a path-style string:
//
//	domains/<qid>
//	devices/<class>/<backend qid>/<ident>
//	labels/<name>
//
// Device idents have '.' replaced by '_' to keep the path a single
// segment per component. The substitution is lossy ("sd.a" and "sd_a"
// collide); the registry treats a same-identity insert as a replacement,
// so a collision surfaces as a replaced entry rather than a duplicate.
type Identity string

// DomainIdentity returns the identity for a domain with the given
// numeric id.
func DomainIdentity(qid int) Identity {
	return Identity(segmentDomains + "/" + strconv.Itoa(qid))
}

// DeviceIdentity returns the identity for a device exported by the
// backend domain with the given qid.
func DeviceIdentity(backend int, class DeviceClass, ident string) Identity {
	safe := strings.ReplaceAll(ident, ".", "_")
	return Identity(fmt.Sprintf("%s/%s/%d/%s", segmentDevices, class, backend, safe))
}

// LabelIdentity returns the identity for a label.
func LabelIdentity(name string) Identity {
	return Identity(segmentLabels + "/" + name)
}

// DeviceScope returns the key prefix shared by all devices of one class
// exported by one backend domain. Used to scope reconciliation passes.
func DeviceScope(backend int, class DeviceClass) Identity {
	return Identity(fmt.Sprintf("%s/%s/%d/", segmentDevices, class, backend))
}

// Kind reports which entity kind the identity addresses, or "" if the
// identity is malformed.
func (id Identity) Kind() Kind {
	switch {
	case strings.HasPrefix(string(id), segmentDomains+"/"):
		return KindDomain
	case strings.HasPrefix(string(id), segmentDevices+"/"):
		return KindDevice
	case strings.HasPrefix(string(id), segmentLabels+"/"):
		return KindLabel
	}
	return ""
}

// Domain returns the numeric domain id encoded in a domain identity.
func (id Identity) Domain() (int, error) {
	rest, ok := strings.CutPrefix(string(id), segmentDomains+"/")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a domain identity", ErrInvalidIdentity, id)
	}
	qid, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has a non-numeric qid", ErrInvalidIdentity, id)
	}
	return qid, nil
}

// Device splits a device identity into its (backend, class, ident)
// triple. The returned ident is the substituted form stored in the key.
func (id Identity) Device() (backend int, class DeviceClass, ident string, err error) {
	rest, ok := strings.CutPrefix(string(id), segmentDevices+"/")
	if !ok {
		return 0, "", "", fmt.Errorf("%w: %q is not a device identity", ErrInvalidIdentity, id)
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return 0, "", "", fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	backend, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: %q has a non-numeric backend qid", ErrInvalidIdentity, id)
	}
	return backend, DeviceClass(parts[0]), parts[2], nil
}

// BelongsToDomain reports whether the identity is a device exported by
// the given domain. Used for the removal cascade when a domain is
// deleted.
func (id Identity) BelongsToDomain(qid int) bool {
	backend, _, _, err := id.Device()
	return err == nil && backend == qid
}

// HasPrefix reports whether the identity starts with the given scope
// prefix.
func (id Identity) HasPrefix(prefix Identity) bool {
	return strings.HasPrefix(string(id), string(prefix))
}
