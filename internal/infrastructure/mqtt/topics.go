package mqtt

import "fmt"

// Topic prefixes for the vmgrid MQTT hierarchy.
//
// Entity topics embed the entity identity, which is already a
// slash-separated path (domains/5, devices/block/2/sda, labels/red),
// so it slots straight into the topic tree:
//
//	vmgrid/state/domains/5
//	vmgrid/event/attached/devices/block/2/sda
const (
	// TopicPrefix is the base for all vmgrid topics.
	TopicPrefix = "vmgrid"

	// TopicPrefixState is the base for retained entity state topics.
	TopicPrefixState = "vmgrid/state"

	// TopicPrefixEvent is the base for structural event topics.
	TopicPrefixEvent = "vmgrid/event"

	// TopicPrefixLifecycle is the base for domain lifecycle signals.
	TopicPrefixLifecycle = "vmgrid/lifecycle"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "vmgrid/system"
)

// Topics provides builders for vmgrid MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EntityState("domains/5")
//	// Returns: "vmgrid/state/domains/5"
type Topics struct{}

// EntityState returns the retained state topic for an entity. The
// payload on this topic is the latest property change batch; new
// subscribers immediately receive the most recent one.
//
// Example: vmgrid/state/domains/5
func (Topics) EntityState(identity string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixState, identity)
}

// EntityEvent returns the topic for a structural event on an entity.
// Event is one of "added", "removed", "attached", "detached".
//
// Example: vmgrid/event/removed/devices/block/2/sda
func (Topics) EntityEvent(event, identity string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, event, identity)
}

// DomainLifecycle returns the lifecycle signal topic for a domain.
//
// Example: vmgrid/lifecycle/domains/5
func (Topics) DomainLifecycle(identity string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixLifecycle, identity)
}

// SystemStatus returns the mirror's own status topic, used for the
// online payload and the Last Will and Testament.
//
// Example: vmgrid/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllStates returns a pattern matching every retained entity state.
//
// Pattern: vmgrid/state/#
func (Topics) AllStates() string {
	return TopicPrefixState + "/#"
}

// AllDomainStates returns a pattern matching state updates of all
// domains.
//
// Pattern: vmgrid/state/domains/+
func (Topics) AllDomainStates() string {
	return TopicPrefixState + "/domains/+"
}

// AllEvents returns a pattern matching every structural event.
//
// Pattern: vmgrid/event/#
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/#"
}

// AllLifecycle returns a pattern matching every domain lifecycle signal.
//
// Pattern: vmgrid/lifecycle/#
func (Topics) AllLifecycle() string {
	return TopicPrefixLifecycle + "/#"
}

// AllTopics returns a pattern matching all vmgrid topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: vmgrid/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
