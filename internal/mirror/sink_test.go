package mirror

import (
	"fmt"
	"sync"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// recordingSink captures notifications for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *recordingSink) PropertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string) {
	s.record("changed %s %d %v", id, len(changed), invalidated)
}

func (s *recordingSink) Added(id entity.Identity)   { s.record("added %s", id) }
func (s *recordingSink) Removed(id entity.Identity) { s.record("removed %s", id) }

func (s *recordingSink) Attached(id, frontend entity.Identity) {
	s.record("attached %s %s", id, frontend)
}

func (s *recordingSink) Detached(id, frontend entity.Identity) {
	s.record("detached %s %s", id, frontend)
}

func (s *recordingSink) DomainState(id entity.Identity, state entity.State) {
	s.record("signal %s %s", id, state)
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSink) count(prefix string) int {
	n := 0
	for _, e := range s.all() {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// newTestRegistry wires a registry with a recording sink.
func newTestRegistry() (*Registry, *recordingSink) {
	sink := &recordingSink{}
	reg := NewRegistry(NewChangeNotifier(sink))
	return reg, sink
}

// haltedDomain builds a minimal domain snapshot for tests.
func haltedDomain(qid int, name string) (entity.Identity, entity.Snapshot) {
	return entity.DomainIdentity(qid), entity.Snapshot{
		"name":           entity.String(name),
		"qid":            entity.Int(int64(qid)),
		entity.PropState: entity.String(string(entity.StateHalted)),
	}
}

// blockDevice builds a minimal device snapshot for tests.
func blockDevice(backend int, ident string) (entity.Identity, entity.Snapshot) {
	return entity.DeviceIdentity(backend, entity.ClassBlock, ident), entity.Snapshot{
		"ident":     entity.String(ident),
		"dev_class": entity.String(string(entity.ClassBlock)),
		"backend_domain": entity.Ref(entity.DomainIdentity(backend)),
	}
}
