package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
)

// fakeClient is an in-memory admin.Client. Enumeration answers come
// from mutable fixture data; events are fed through a channel by the
// test.
type fakeClient struct {
	mu      sync.Mutex
	domains []admin.DomainInfo
	devices map[string][]admin.DeviceInfo
	labels  []admin.LabelInfo
	events  chan admin.Event
	err     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		devices: make(map[string][]admin.DeviceInfo),
		events:  make(chan admin.Event, 32),
	}
}

func deviceKey(backend int, class entity.DeviceClass) string {
	return fmt.Sprintf("%d/%s", backend, class)
}

func (f *fakeClient) Domains(ctx context.Context) ([]admin.DomainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]admin.DomainInfo(nil), f.domains...), nil
}

func (f *fakeClient) Domain(ctx context.Context, qid int) (admin.DomainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.QID == qid {
			return d, nil
		}
	}
	return admin.DomainInfo{}, admin.ErrNoSuchEntity
}

func (f *fakeClient) DomainByName(ctx context.Context, name string) (admin.DomainInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.Name == name {
			return d, nil
		}
	}
	return admin.DomainInfo{}, admin.ErrNoSuchEntity
}

func (f *fakeClient) Devices(ctx context.Context, backend int, class entity.DeviceClass) ([]admin.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]admin.DeviceInfo(nil), f.devices[deviceKey(backend, class)]...), nil
}

func (f *fakeClient) Labels(ctx context.Context) ([]admin.LabelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]admin.LabelInfo(nil), f.labels...), nil
}

// Events forwards the fixture channel, closing the stream on
// cancellation the way the socket client does.
func (f *fakeClient) Events(ctx context.Context) (<-chan admin.Event, error) {
	out := make(chan admin.Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-f.events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeClient) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeClient) setDevices(backend int, class entity.DeviceClass, infos []admin.DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[deviceKey(backend, class)] = infos
}

func (f *fakeClient) addDomain(info admin.DomainInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains = append(f.domains, info)
}

// recorder captures sink notifications as formatted strings.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, fmt.Sprintf(format, args...))
}

func (r *recorder) PropertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string) {
	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	r.record("changed %s %d %d", id, len(keys), len(invalidated))
}

func (r *recorder) Added(id entity.Identity)   { r.record("added %s", id) }
func (r *recorder) Removed(id entity.Identity) { r.record("removed %s", id) }

func (r *recorder) Attached(id, frontend entity.Identity) {
	r.record("attached %s %s", id, frontend)
}

func (r *recorder) Detached(id, frontend entity.Identity) {
	r.record("detached %s %s", id, frontend)
}

func (r *recorder) DomainState(id entity.Identity, state entity.State) {
	r.record("signal %s %s", id, state)
}

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) has(entry string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// statsSpy records the last stats forwarding call.
type statsSpy struct {
	mu     sync.Mutex
	name   string
	fields map[string]int64
}

func (s *statsSpy) RecordDomainStats(name string, fields map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.fields = fields
}

func (s *statsSpy) last() (string, map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.fields
}

type harness struct {
	client   *fakeClient
	registry *mirror.Registry
	rec      *recorder
	router   *Router
	cancel   context.CancelFunc
	done     chan error
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		client: newFakeClient(),
		rec:    &recorder{},
		done:   make(chan error, 1),
	}
	h.registry = mirror.NewRegistry(mirror.NewChangeNotifier(h.rec))
	opts = append([]Option{WithWorkers(1)}, opts...)
	h.router = New(h.client, h.registry, mirror.NewReconciler(h.registry), opts...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.router.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("router did not stop")
		}
	})
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func halted(qid int, name string) admin.DomainInfo {
	return admin.DomainInfo{QID: qid, Name: name, Power: "Halted", Label: "red"}
}

func TestBootstrap(t *testing.T) {
	h := newHarness(t)
	h.client.labels = []admin.LabelInfo{
		{Name: "red", Color: "0xcc0000", Icon: "appvm-red", Index: 1},
		{Name: "blue", Color: "0x0000cc", Icon: "appvm-blue", Index: 2},
	}
	h.client.addDomain(admin.DomainInfo{QID: 0, Name: "dom0", Power: "Running"})
	h.client.addDomain(halted(5, "work"))
	h.client.setDevices(0, entity.ClassBlock, []admin.DeviceInfo{
		{BackendQID: 0, Class: entity.ClassBlock, Ident: "sda"},
	})

	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if got := h.registry.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	e, err := h.registry.Get(entity.DomainIdentity(0))
	if err != nil {
		t.Fatalf("Get(dom0) error = %v", err)
	}
	if e.State() != entity.StateStarted {
		t.Errorf("dom0 state = %s, want %s", e.State(), entity.StateStarted)
	}

	// A second pass against unchanged fixtures must be a no-op.
	before := h.rec.count("")
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	if got := h.rec.count(""); got != before {
		t.Errorf("second bootstrap emitted %d notifications", got-before)
	}
}

func TestDomainLifecycle(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(halted(5, "work"))
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)
	id := entity.DomainIdentity(5)

	h.client.events <- admin.Event{Origin: "work", Kind: "domain-spawn"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-start"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-pre-shutdown"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-shutdown"}

	waitFor(t, "halted signal", func() bool {
		return h.rec.has(fmt.Sprintf("signal %s %s", id, entity.StateHalted))
	})
	for _, state := range []entity.State{
		entity.StateStarting, entity.StateStarted, entity.StateHalting, entity.StateHalted,
	} {
		want := fmt.Sprintf("signal %s %s", id, state)
		if !h.rec.has(want) {
			t.Errorf("missing lifecycle signal %q", want)
		}
	}
	e, _ := h.registry.Get(id)
	if e.State() != entity.StateHalted {
		t.Errorf("final state = %s, want %s", e.State(), entity.StateHalted)
	}
}

func TestShutdownWhileStartingFails(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(halted(5, "work"))
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)
	id := entity.DomainIdentity(5)

	h.client.events <- admin.Event{Origin: "work", Kind: "domain-spawn"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-shutdown"}

	waitFor(t, "failed signal", func() bool {
		return h.rec.has(fmt.Sprintf("signal %s %s", id, entity.StateFailed))
	})
	e, _ := h.registry.Get(id)
	if e.State() != entity.StateFailed {
		t.Errorf("state = %s, want %s", e.State(), entity.StateFailed)
	}
	if h.rec.has(fmt.Sprintf("signal %s %s", id, entity.StateHalted)) {
		t.Error("halted signal emitted for a domain that never started")
	}
}

func TestDuplicateEventsAreIdempotent(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(halted(5, "work"))
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)
	id := entity.DomainIdentity(5)

	h.client.events <- admin.Event{Origin: "work", Kind: "domain-spawn"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-start"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-start"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-start"}
	// Sentinel so the wait below covers the duplicates too.
	h.client.events <- admin.Event{
		Origin: "work", Kind: "property-set:netvm",
		Args: map[string]string{"newvalue": "none"},
	}

	waitFor(t, "netvm write", func() bool {
		_, err := h.registry.GetProperty(id, "netvm")
		return err == nil
	})
	started := fmt.Sprintf("signal %s %s", id, entity.StateStarted)
	if got := h.rec.count(started); got != 1 {
		t.Errorf("started signal emitted %d times, want 1", got)
	}
}

func TestPropertySetReferenceValues(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(halted(5, "work"))
	h.client.addDomain(admin.DomainInfo{QID: 7, Name: "sys-net", Power: "Running"})
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)
	id := entity.DomainIdentity(5)

	h.client.events <- admin.Event{
		Origin: "work", Kind: "property-set:netvm",
		Args: map[string]string{"newvalue": "sys-net"},
	}
	h.client.events <- admin.Event{
		Origin: "work", Kind: "property-set:label",
		Args: map[string]string{"newvalue": "blue"},
	}

	waitFor(t, "label write", func() bool {
		v, err := h.registry.GetProperty(id, "label")
		if err != nil {
			return false
		}
		_, ok := v.AsRef()
		return ok
	})

	// Both paths store references, so a re-enumeration carrying the same
	// netvm must not look like a change.
	v, err := h.registry.GetProperty(id, "netvm")
	if err != nil {
		t.Fatalf("GetProperty(netvm) error = %v", err)
	}
	if ref, ok := v.AsRef(); !ok || ref != entity.DomainIdentity(7) {
		t.Errorf("netvm = %#v, want reference to %s", v, entity.DomainIdentity(7))
	}
	v, _ = h.registry.GetProperty(id, "label")
	if ref, ok := v.AsRef(); !ok || ref != entity.LabelIdentity("blue") {
		t.Errorf("label = %#v, want reference to %s", v, entity.LabelIdentity("blue"))
	}

	// Detaching the netvm clears the reference back to a plain string.
	h.client.events <- admin.Event{
		Origin: "work", Kind: "property-set:netvm",
		Args: map[string]string{"newvalue": "none"},
	}
	waitFor(t, "netvm cleared", func() bool {
		v, err := h.registry.GetProperty(id, "netvm")
		if err != nil {
			return false
		}
		s, ok := v.AsString()
		return ok && s == ""
	})
}

func TestDomainAddAndDelete(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.client.addDomain(admin.DomainInfo{QID: 7, Name: "sys-net", Power: "Running"})
	h.client.events <- admin.Event{Kind: "domain-add", Args: map[string]string{"vm": "sys-net"}}
	id := entity.DomainIdentity(7)
	waitFor(t, "domain added", func() bool {
		_, err := h.registry.Get(id)
		return err == nil
	})
	if !h.rec.has(fmt.Sprintf("added %s", id)) {
		t.Error("missing added notification")
	}

	// A dependent device must be removed with its domain.
	deviceID := entity.DeviceIdentity(7, entity.ClassBlock, "sda")
	h.registry.Put(deviceID, entity.KindDevice, entity.Snapshot{"ident": entity.String("sda")})

	h.client.events <- admin.Event{Kind: "domain-delete", Args: map[string]string{"vm": "sys-net"}}
	waitFor(t, "domain removed", func() bool {
		_, err := h.registry.Get(id)
		return errors.Is(err, mirror.ErrNotFound)
	})
	if _, err := h.registry.Get(deviceID); !errors.Is(err, mirror.ErrNotFound) {
		t.Errorf("dependent device survived removal: %v", err)
	}

	// Deleting again is a no-op, not an error.
	h.client.events <- admin.Event{Kind: "domain-delete", Args: map[string]string{"vm": "sys-net"}}
	if err := h.stop(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestDeviceAttachAndDetach(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(admin.DomainInfo{QID: 2, Name: "sys-usb", Power: "Running"})
	h.client.addDomain(halted(5, "work"))
	h.client.setDevices(2, entity.ClassBlock, []admin.DeviceInfo{
		{BackendQID: 2, Class: entity.ClassBlock, Ident: "sda"},
	})
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)

	deviceID := entity.DeviceIdentity(2, entity.ClassBlock, "sda")
	frontendID := entity.DomainIdentity(5)

	h.client.events <- admin.Event{
		Origin: "work", Kind: "device-attach:block",
		Args: map[string]string{"device": "sys-usb:sda", "option.read-only": "True"},
	}
	waitFor(t, "attach", func() bool {
		return h.rec.has(fmt.Sprintf("attached %s %s", deviceID, frontendID))
	})
	v, err := h.registry.GetProperty(deviceID, entity.PropAttachOptions)
	if err != nil {
		t.Fatalf("GetProperty(attach_options) error = %v", err)
	}
	options, _ := v.AsMap()
	if ro, _ := options["read-only"].AsBool(); !ro {
		t.Errorf("attach_options = %v, want read-only true", options)
	}

	h.client.events <- admin.Event{
		Origin: "work", Kind: "device-detach:block",
		Args: map[string]string{"device": "sys-usb:sda"},
	}
	waitFor(t, "detach", func() bool {
		return h.rec.has(fmt.Sprintf("detached %s %s", deviceID, frontendID))
	})
	if _, err := h.registry.GetProperty(deviceID, entity.PropFrontendDomain); !errors.Is(err, mirror.ErrUnknownProperty) {
		t.Errorf("frontend_domain still present after detach: %v", err)
	}
}

func TestDeviceListChangeReconciles(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(admin.DomainInfo{QID: 2, Name: "sys-usb", Power: "Running"})
	h.client.setDevices(2, entity.ClassBlock, []admin.DeviceInfo{
		{BackendQID: 2, Class: entity.ClassBlock, Ident: "sda"},
	})
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)

	// sda unplugged, sdb plugged in.
	h.client.setDevices(2, entity.ClassBlock, []admin.DeviceInfo{
		{BackendQID: 2, Class: entity.ClassBlock, Ident: "sdb"},
	})
	h.client.events <- admin.Event{Origin: "sys-usb", Kind: "device-list-change:block"}

	oldID := entity.DeviceIdentity(2, entity.ClassBlock, "sda")
	newID := entity.DeviceIdentity(2, entity.ClassBlock, "sdb")
	waitFor(t, "reconciled scope", func() bool {
		_, errOld := h.registry.Get(oldID)
		_, errNew := h.registry.Get(newID)
		return errors.Is(errOld, mirror.ErrNotFound) && errNew == nil
	})
	if !h.rec.has(fmt.Sprintf("removed %s", oldID)) || !h.rec.has(fmt.Sprintf("added %s", newID)) {
		t.Error("missing removal or addition notification for reconciled scope")
	}
}

func TestNoiseEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.client.addDomain(halted(5, "work"))
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)

	before := h.rec.count("")
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-load"}
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-is-fully-usable"}
	h.client.events <- admin.Event{Origin: "work", Kind: "property-pre-set:netvm"}
	h.client.events <- admin.Event{Origin: "work", Kind: "some-future-event"}
	// Sentinel proving the noise above has been drained.
	h.client.events <- admin.Event{Origin: "work", Kind: "domain-spawn"}

	waitFor(t, "sentinel spawn", func() bool {
		return h.rec.has(fmt.Sprintf("signal %s %s", entity.DomainIdentity(5), entity.StateStarting))
	})
	// Exactly the sentinel's two notifications: property change + signal.
	if got := h.rec.count(""); got != before+2 {
		t.Errorf("noise events produced notifications: %d new entries, want 2", got-before)
	}
}

func TestStatsEvent(t *testing.T) {
	spy := &statsSpy{}
	h := newHarness(t, WithStatsRecorder(spy))
	h.client.addDomain(admin.DomainInfo{QID: 5, Name: "work", Power: "Running"})
	if err := h.router.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	h.start(t)
	id := entity.DomainIdentity(5)

	h.client.events <- admin.Event{
		Origin: "work", Kind: "vm-stats",
		Args: map[string]string{"memory_kb": "409600", "cpu_usage": "17"},
	}
	waitFor(t, "stats applied", func() bool {
		_, err := h.registry.GetProperty(id, "memory_usage")
		return err == nil
	})
	v, _ := h.registry.GetProperty(id, "memory_usage")
	if mem, _ := v.AsInt(); mem != 409600 {
		t.Errorf("memory_usage = %d, want 409600", mem)
	}
	if _, err := h.registry.GetProperty(id, "memory_kb"); !errors.Is(err, mirror.ErrUnknownProperty) {
		t.Error("raw memory_kb stored instead of renamed memory_usage")
	}
	name, fields := spy.last()
	if name != "work" || fields["memory_usage"] != 409600 || fields["cpu_usage"] != 17 {
		t.Errorf("recorded stats = %q %v", name, fields)
	}
}

func TestStreamLossIsFatal(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { h.done <- h.router.Run(ctx) }()

	h.client.mu.Lock()
	h.client.err = admin.ErrStreamClosed
	h.client.mu.Unlock()
	close(h.client.events)

	select {
	case err := <-h.done:
		if !errors.Is(err, admin.ErrStreamClosed) {
			t.Errorf("Run() error = %v, want stream loss", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after stream loss")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind   string
		action action
	}{
		{"domain-add", actionDomainAdd},
		{"domain-delete", actionDomainDelete},
		{"domain-spawn", actionStateChange},
		{"domain-shutdown", actionStateChange},
		{"domain-start-failed", actionStateChange},
		{"property-set:netvm", actionPropertySet},
		{"property-pre-set:netvm", actionIgnore},
		{"device-list-change:pci", actionDeviceListChange},
		{"device-attach:usb", actionDeviceAttach},
		{"device-detach:usb", actionDeviceDetach},
		{"vm-stats", actionStats},
		{"domain-load", actionIgnore},
		{"domain-is-fully-usable", actionIgnore},
		{"never-heard-of-it", actionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c := classify(admin.Event{Kind: tt.kind})
			if c.action != tt.action {
				t.Errorf("classify(%q).action = %d, want %d", tt.kind, c.action, tt.action)
			}
		})
	}
	c := classify(admin.Event{Kind: "property-set:default_user"})
	if c.property != "default_user" {
		t.Errorf("property = %q, want default_user", c.property)
	}
	c = classify(admin.Event{Kind: "device-attach:block"})
	if c.class != entity.ClassBlock {
		t.Errorf("class = %q, want block", c.class)
	}
	c = classify(admin.Event{Kind: "domain-shutdown"})
	if c.state != entity.StateHalted || !c.failedIfStarting {
		t.Error("domain-shutdown must target Halted with the failed-if-starting rule")
	}
}

func TestSerializationKey(t *testing.T) {
	attach := classify(admin.Event{
		Origin: "work", Kind: "device-attach:block",
		Args: map[string]string{"device": "sys-usb:sda"},
	})
	listChange := classify(admin.Event{Origin: "sys-usb", Kind: "device-list-change:block"})
	if attach.serializationKey() != listChange.serializationKey() {
		t.Errorf("attach key %q and list-change key %q must match for one backend scope",
			attach.serializationKey(), listChange.serializationKey())
	}
	spawn := classify(admin.Event{Origin: "work", Kind: "domain-spawn"})
	add := classify(admin.Event{Kind: "domain-add", Args: map[string]string{"vm": "work"}})
	if spawn.serializationKey() != add.serializationKey() {
		t.Errorf("spawn key %q and add key %q must match for one domain",
			spawn.serializationKey(), add.serializationKey())
	}
}
