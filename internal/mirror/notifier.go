package mirror

import (
	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Logger defines the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink receives outward notifications about mirror changes. The wire
// encoding and subscriber fan-out behind a sink are its own concern.
//
// Sinks are called synchronously from the mutating goroutine and must
// not block; slow transports should buffer internally.
type Sink interface {
	// PropertiesChanged reports a mutation batch: the properties whose
	// values changed and the properties that were invalidated (removed).
	PropertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string)

	// Added reports a newly registered entity.
	Added(id entity.Identity)

	// Removed reports a deregistered entity.
	Removed(id entity.Identity)

	// Attached reports a device assignment to a frontend domain.
	Attached(id entity.Identity, frontend entity.Identity)

	// Detached reports a cleared device assignment.
	Detached(id entity.Identity, frontend entity.Identity)

	// DomainState reports a domain lifecycle transition landing on a new
	// state (Starting, Started, Failed, Halting, Halted).
	DomainState(id entity.Identity, state entity.State)
}

// ChangeNotifier is the only component that causes externally observable
// notification side effects. It fans a notification out to every
// registered sink and derives lifecycle signals from state properties
// landing in a changed set.
//
// A nil *ChangeNotifier is valid and emits nothing, so the registry can
// be used silently in tests.
type ChangeNotifier struct {
	sinks  []Sink
	logger Logger
}

// NewChangeNotifier creates a notifier fanning out to the given sinks.
func NewChangeNotifier(sinks ...Sink) *ChangeNotifier {
	return &ChangeNotifier{sinks: sinks, logger: noopLogger{}}
}

// SetLogger sets the logger used for emission tracing.
func (n *ChangeNotifier) SetLogger(logger Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// AddSink registers an additional sink. Not safe for use after the
// event loop has started; wire all sinks during startup.
func (n *ChangeNotifier) AddSink(s Sink) {
	n.sinks = append(n.sinks, s)
}

func (n *ChangeNotifier) propertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string) {
	if n == nil || (len(changed) == 0 && len(invalidated) == 0) {
		return
	}
	n.logger.Debug("properties changed", "identity", id, "changed", len(changed), "invalidated", len(invalidated))
	for _, s := range n.sinks {
		s.PropertiesChanged(id, changed, invalidated)
	}

	// A state value landing in the changed set becomes a lifecycle signal.
	if raw, ok := changed[entity.PropState]; ok && id.Kind() == entity.KindDomain {
		if str, ok := raw.AsString(); ok {
			n.domainState(id, entity.State(str))
		}
	}
}

func (n *ChangeNotifier) domainState(id entity.Identity, state entity.State) {
	if n == nil || state == entity.StateUnknown {
		return
	}
	n.logger.Debug("domain lifecycle signal", "identity", id, "state", state)
	for _, s := range n.sinks {
		s.DomainState(id, state)
	}
}

func (n *ChangeNotifier) added(id entity.Identity) {
	if n == nil {
		return
	}
	n.logger.Debug("entity added", "identity", id)
	for _, s := range n.sinks {
		s.Added(id)
	}
}

func (n *ChangeNotifier) removed(id entity.Identity) {
	if n == nil {
		return
	}
	n.logger.Debug("entity removed", "identity", id)
	for _, s := range n.sinks {
		s.Removed(id)
	}
}

func (n *ChangeNotifier) attached(id, frontend entity.Identity) {
	if n == nil {
		return
	}
	n.logger.Debug("device attached", "identity", id, "frontend", frontend)
	for _, s := range n.sinks {
		s.Attached(id, frontend)
	}
}

func (n *ChangeNotifier) detached(id, frontend entity.Identity) {
	if n == nil {
		return
	}
	n.logger.Debug("device detached", "identity", id, "frontend", frontend)
	for _, s := range n.sinks {
		s.Detached(id, frontend)
	}
}
