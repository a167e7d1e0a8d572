package mirror

import (
	"errors"
	"testing"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

func TestRegistry_PutAndGet(t *testing.T) {
	reg, sink := newTestRegistry()
	id, snap := haltedDomain(7, "work")

	reg.Put(id, entity.KindDomain, snap)

	got, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State() != entity.StateHalted {
		t.Errorf("state = %s, want Halted", got.State())
	}
	if n := sink.count("added"); n != 1 {
		t.Errorf("added notifications = %d, want 1", n)
	}

	t.Run("returns ErrNotFound for unknown identity", func(t *testing.T) {
		_, err := reg.Get(entity.DomainIdentity(99))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("returned entity is isolated", func(t *testing.T) {
		got, _ := reg.Get(id)
		got.Snapshot["name"] = entity.String("tampered")

		fresh, _ := reg.Get(id)
		if name, _ := fresh.Snapshot["name"].AsString(); name != "work" {
			t.Errorf("registry snapshot mutated through copy: name = %q", name)
		}
	})
}

func TestRegistry_PutReplacementDiffs(t *testing.T) {
	reg, sink := newTestRegistry()
	id, snap := haltedDomain(7, "work")
	reg.Put(id, entity.KindDomain, snap)
	sink.reset()

	// Identical replacement emits nothing.
	reg.Put(id, entity.KindDomain, snap)
	if got := sink.all(); len(got) != 0 {
		t.Errorf("identical Put emitted %v, want nothing", got)
	}

	// Replacement with one changed field emits one batch.
	next := snap.Clone()
	next["name"] = entity.String("work-2")
	reg.Put(id, entity.KindDomain, next)
	if n := sink.count("changed"); n != 1 {
		t.Errorf("changed notifications = %d, want 1", n)
	}
	if n := sink.count("added"); n != 0 {
		t.Errorf("added notifications = %d, want 0", n)
	}
}

func TestRegistry_SetProperty(t *testing.T) {
	reg, sink := newTestRegistry()
	id, snap := haltedDomain(7, "work")
	reg.Put(id, entity.KindDomain, snap)
	sink.reset()

	t.Run("changed value notifies once", func(t *testing.T) {
		changed, err := reg.SetProperty(id, "netvm", entity.Ref(entity.DomainIdentity(2)))
		if err != nil {
			t.Fatalf("SetProperty() error = %v", err)
		}
		if !changed {
			t.Error("changed = false, want true")
		}
		if n := sink.count("changed"); n != 1 {
			t.Errorf("changed notifications = %d, want 1", n)
		}
	})

	t.Run("identical value is a no-op", func(t *testing.T) {
		sink.reset()
		changed, err := reg.SetProperty(id, "netvm", entity.Ref(entity.DomainIdentity(2)))
		if err != nil {
			t.Fatalf("SetProperty() error = %v", err)
		}
		if changed {
			t.Error("changed = true, want false")
		}
		if got := sink.all(); len(got) != 0 {
			t.Errorf("duplicate write emitted %v, want nothing", got)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := reg.SetProperty(entity.DomainIdentity(99), "name", entity.String("x"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("SetProperty() error = %v, want ErrNotFound", err)
		}
	})
}

func TestRegistry_StateTransitions(t *testing.T) {
	reg, sink := newTestRegistry()
	id, snap := haltedDomain(7, "work")
	reg.Put(id, entity.KindDomain, snap)
	sink.reset()

	t.Run("legal transition emits change and lifecycle signal", func(t *testing.T) {
		changed, err := reg.SetProperty(id, entity.PropState, entity.String(string(entity.StateStarting)))
		if err != nil {
			t.Fatalf("SetProperty(state) error = %v", err)
		}
		if !changed {
			t.Error("changed = false, want true")
		}
		if n := sink.count("signal"); n != 1 {
			t.Errorf("lifecycle signals = %d, want 1", n)
		}
	})

	t.Run("illegal transition preserves state and emits nothing", func(t *testing.T) {
		sink.reset()
		_, err := reg.SetProperty(id, entity.PropState, entity.String(string(entity.StateHalted)))
		// Starting -> Halted is legal; Starting -> Starting is not. Use the
		// self transition to provoke the short-circuit, then a real illegal one.
		if err != nil {
			t.Fatalf("Starting -> Halted should be legal, got %v", err)
		}
		sink.reset()

		_, err = reg.SetProperty(id, entity.PropState, entity.String(string(entity.StateStarted)))
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("SetProperty() error = %v, want ErrIllegalTransition", err)
		}
		if got := sink.all(); len(got) != 0 {
			t.Errorf("rejected transition emitted %v, want nothing", got)
		}
		cur, _ := reg.Get(id)
		if cur.State() != entity.StateHalted {
			t.Errorf("state = %s, want Halted preserved", cur.State())
		}
	})

	t.Run("garbage state value rejected", func(t *testing.T) {
		_, err := reg.SetProperty(id, entity.PropState, entity.String("Running"))
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("SetProperty() error = %v, want ErrIllegalTransition", err)
		}
	})
}

func TestRegistry_AttachDetach(t *testing.T) {
	reg, sink := newTestRegistry()
	domID, domSnap := haltedDomain(5, "sys-usb")
	reg.Put(domID, entity.KindDomain, domSnap)
	devID, devSnap := blockDevice(3, "sda")
	reg.Put(devID, entity.KindDevice, devSnap)
	sink.reset()

	opts := map[string]entity.Value{"read-only": entity.Bool(true)}
	if err := reg.Attach(devID, domID, opts); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if n := sink.count("attached"); n != 1 {
		t.Errorf("attached signals = %d, want 1", n)
	}
	if n := sink.count("changed"); n != 1 {
		t.Errorf("changed notifications = %d, want 1", n)
	}

	dev, _ := reg.Get(devID)
	frontend, gotOpts, ok := dev.Assignment()
	if !ok || frontend != domID {
		t.Fatalf("Assignment() = (%q, _, %v), want frontend %q", frontend, ok, domID)
	}
	if ro, _ := gotOpts["read-only"].AsBool(); !ro {
		t.Errorf("options = %v", gotOpts)
	}

	t.Run("re-attach with identical values is silent", func(t *testing.T) {
		sink.reset()
		if err := reg.Attach(devID, domID, opts); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		if got := sink.all(); len(got) != 0 {
			t.Errorf("re-attach emitted %v, want nothing", got)
		}
	})

	t.Run("detach clears both fields together", func(t *testing.T) {
		sink.reset()
		if err := reg.Detach(devID); err != nil {
			t.Fatalf("Detach() error = %v", err)
		}

		events := sink.all()
		if len(events) != 2 {
			t.Fatalf("events = %v, want one changed batch and one detached", events)
		}
		if events[0] != "changed "+string(devID)+" 0 [attach_options frontend_domain]" {
			t.Errorf("invalidation batch = %q", events[0])
		}

		dev, _ := reg.Get(devID)
		if _, hasOpts := dev.Snapshot[entity.PropAttachOptions]; hasOpts {
			t.Error("attach_options survived detach")
		}
		if _, _, ok := dev.Assignment(); ok {
			t.Error("assignment survived detach")
		}
	})

	t.Run("detach on unassigned device is silent", func(t *testing.T) {
		sink.reset()
		if err := reg.Detach(devID); err != nil {
			t.Fatalf("Detach() error = %v", err)
		}
		if got := sink.all(); len(got) != 0 {
			t.Errorf("second detach emitted %v, want nothing", got)
		}
	})
}

func TestRegistry_RemoveCascade(t *testing.T) {
	reg, sink := newTestRegistry()

	domID, domSnap := haltedDomain(3, "sys-net")
	reg.Put(domID, entity.KindDomain, domSnap)

	sda, sdaSnap := blockDevice(3, "sda")
	reg.Put(sda, entity.KindDevice, sdaSnap)
	nic := entity.DeviceIdentity(3, entity.ClassPCI, "00_19_0")
	reg.Put(nic, entity.KindDevice, entity.Snapshot{"ident": entity.String("00_19_0")})

	other, otherSnap := blockDevice(4, "sdb")
	reg.Put(other, entity.KindDevice, otherSnap)
	sink.reset()

	if existed := reg.Remove(domID); !existed {
		t.Fatal("Remove() = false, want true")
	}

	if n := sink.count("removed"); n != 3 {
		t.Errorf("removed notifications = %d, want 3 (two devices + domain)", n)
	}
	if _, err := reg.Get(sda); !errors.Is(err, ErrNotFound) {
		t.Error("dependent block device survived cascade")
	}
	if _, err := reg.Get(nic); !errors.Is(err, ErrNotFound) {
		t.Error("dependent pci device survived cascade")
	}
	if _, err := reg.Get(other); err != nil {
		t.Error("unrelated device removed by cascade")
	}

	t.Run("removing an absent identity reports false silently", func(t *testing.T) {
		sink.reset()
		if existed := reg.Remove(domID); existed {
			t.Error("Remove() = true for absent identity")
		}
		if got := sink.all(); len(got) != 0 {
			t.Errorf("absent remove emitted %v, want nothing", got)
		}
	})
}

func TestRegistry_ListFilter(t *testing.T) {
	reg, _ := newTestRegistry()
	domID, domSnap := haltedDomain(3, "sys-net")
	reg.Put(domID, entity.KindDomain, domSnap)
	sda, sdaSnap := blockDevice(3, "sda")
	reg.Put(sda, entity.KindDevice, sdaSnap)
	nic := entity.DeviceIdentity(5, entity.ClassPCI, "00_19_0")
	reg.Put(nic, entity.KindDevice, entity.Snapshot{"ident": entity.String("00_19_0")})
	reg.Put(entity.LabelIdentity("red"), entity.KindLabel, entity.Snapshot{"color": entity.String("0xcc0000")})

	if got := len(reg.List(Filter{})); got != 4 {
		t.Errorf("List(all) = %d entities, want 4", got)
	}
	if got := len(reg.List(Filter{Kind: entity.KindDevice})); got != 2 {
		t.Errorf("List(devices) = %d, want 2", got)
	}
	scoped := reg.List(Filter{Prefix: entity.DeviceScope(3, entity.ClassBlock)})
	if len(scoped) != 1 || scoped[0].Identity != sda {
		t.Errorf("List(scope) = %v, want [%s]", scoped, sda)
	}
}

func TestRegistry_RemoveProperty(t *testing.T) {
	reg, sink := newTestRegistry()
	id, snap := haltedDomain(5, "work")
	snap["memory_usage"] = entity.Int(2048)
	reg.Put(id, entity.KindDomain, snap)
	sink.reset()

	changed, err := reg.RemoveProperty(id, "memory_usage")
	if err != nil || !changed {
		t.Fatalf("RemoveProperty() = (%v, %v), want (true, nil)", changed, err)
	}
	if _, err := reg.GetProperty(id, "memory_usage"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("GetProperty() error = %v, want ErrUnknownProperty", err)
	}
	if n := sink.count("changed " + string(id) + " 0 [memory_usage]"); n != 1 {
		t.Errorf("invalidation batches = %d, want 1", n)
	}

	// Removing an absent property is quiet.
	sink.reset()
	changed, err = reg.RemoveProperty(id, "memory_usage")
	if err != nil || changed {
		t.Fatalf("second RemoveProperty() = (%v, %v), want (false, nil)", changed, err)
	}
	if got := sink.all(); len(got) != 0 {
		t.Errorf("emitted %v, want nothing", got)
	}

	// A domain always carries a lifecycle state.
	if _, err := reg.RemoveProperty(id, entity.PropState); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("RemoveProperty(state) error = %v, want ErrIllegalTransition", err)
	}
	if _, err := reg.RemoveProperty(entity.DomainIdentity(99), "name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveProperty() on unknown identity error = %v, want ErrNotFound", err)
	}
}

func TestView_ReadOnlySemantics(t *testing.T) {
	reg, _ := newTestRegistry()
	id, snap := haltedDomain(7, "work")
	reg.Put(id, entity.KindDomain, snap)
	view := NewView(reg)

	if got := view.ListAll(Filter{Kind: entity.KindDomain}); len(got) != 1 {
		t.Fatalf("ListAll() = %d entities, want 1", len(got))
	}

	v, err := view.GetProperty(id, "name")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if name, _ := v.AsString(); name != "work" {
		t.Errorf("name = %q, want work", name)
	}

	_, err = view.GetProperty(id, "no_such_property")
	if !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("GetProperty() error = %v, want ErrUnknownProperty", err)
	}
	_, err = view.Get(entity.DomainIdentity(99))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
