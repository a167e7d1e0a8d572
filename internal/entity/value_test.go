package entity

import (
	"encoding/json"
	"testing"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal strings", String("x"), String("x"), true},
		{"different strings", String("x"), String("y"), false},
		{"string vs int", String("1"), Int(1), false},
		{"bool vs int", Bool(true), Int(1), false},
		{"equal ints", Int(640), Int(640), true},
		{"equal refs", Ref(DomainIdentity(5)), Ref(DomainIdentity(5)), true},
		{"ref vs string", Ref("domains/5"), String("domains/5"), false},
		{
			"equal maps",
			MapOf(map[string]Value{"read-only": Bool(true)}),
			MapOf(map[string]Value{"read-only": Bool(true)}),
			true,
		},
		{
			"different maps",
			MapOf(map[string]Value{"read-only": Bool(true)}),
			MapOf(map[string]Value{"read-only": Bool(false)}),
			false,
		},
		{
			"missing key",
			MapOf(map[string]Value{"a": Int(1), "b": Int(2)}),
			MapOf(map[string]Value{"a": Int(1)}),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueMapIsolation(t *testing.T) {
	src := map[string]Value{"frontend": Int(5)}
	v := MapOf(src)
	src["frontend"] = Int(9)

	m, ok := v.AsMap()
	if !ok {
		t.Fatal("AsMap() not ok")
	}
	if got, _ := m["frontend"].AsInt(); got != 5 {
		t.Errorf("map value changed through source alias: got %d, want 5", got)
	}
}

func TestValueMarshalJSON(t *testing.T) {
	v := MapOf(map[string]Value{
		"name":    String("work"),
		"qid":     Int(7),
		"netvm":   Ref(DomainIdentity(2)),
		"running": Bool(true),
	})
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	ref, ok := decoded["netvm"].(map[string]any)
	if !ok || ref["$ref"] != "domains/2" {
		t.Errorf("netvm = %v, want {$ref: domains/2}", decoded["netvm"])
	}
	if decoded["qid"] != float64(7) {
		t.Errorf("qid = %v, want 7", decoded["qid"])
	}
}

func TestSnapshotDiff(t *testing.T) {
	old := Snapshot{
		"name":  String("work"),
		"state": String("Halted"),
		"label": Ref(LabelIdentity("red")),
	}
	next := Snapshot{
		"name":  String("work"),
		"state": String("Started"),
		"memory": Int(4096),
	}

	changed, removed := next.Diff(old)
	if len(changed) != 2 {
		t.Fatalf("changed = %v, want state and memory", changed)
	}
	if s, _ := changed["state"].AsString(); s != "Started" {
		t.Errorf("changed[state] = %v", changed["state"])
	}
	if _, ok := changed["memory"]; !ok {
		t.Error("changed missing new property memory")
	}
	if len(removed) != 1 || removed[0] != "label" {
		t.Errorf("removed = %v, want [label]", removed)
	}
}

func TestSnapshotDiff_NoChanges(t *testing.T) {
	snap := Snapshot{"name": String("work"), "qid": Int(7)}
	changed, removed := snap.Diff(snap.Clone())
	if len(changed) != 0 || len(removed) != 0 {
		t.Errorf("Diff of identical snapshots = (%v, %v), want empty", changed, removed)
	}
}

func TestEntityDeepCopy(t *testing.T) {
	e := &Entity{
		Identity: DomainIdentity(7),
		Kind:     KindDomain,
		Snapshot: Snapshot{"state": String("Halted")},
	}
	cpy := e.DeepCopy()
	cpy.Snapshot["state"] = String("Started")

	if e.State() != StateHalted {
		t.Errorf("original mutated through copy: state = %s", e.State())
	}
}

func TestEntityAssignment(t *testing.T) {
	e := &Entity{
		Identity: DeviceIdentity(3, ClassBlock, "sda"),
		Kind:     KindDevice,
		Snapshot: Snapshot{
			PropFrontendDomain: Ref(DomainIdentity(5)),
			PropAttachOptions:  MapOf(map[string]Value{"read-only": Bool(true)}),
		},
	}
	frontend, opts, ok := e.Assignment()
	if !ok {
		t.Fatal("Assignment() not ok")
	}
	if frontend != DomainIdentity(5) {
		t.Errorf("frontend = %q", frontend)
	}
	if ro, _ := opts["read-only"].AsBool(); !ro {
		t.Errorf("options = %v", opts)
	}

	delete(e.Snapshot, PropFrontendDomain)
	if _, _, ok := e.Assignment(); ok {
		t.Error("Assignment() ok after frontend cleared")
	}
}
