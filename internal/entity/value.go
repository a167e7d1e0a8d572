package entity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind tags the concrete type held by a Value.
type ValueKind uint8

// Value kinds.
const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindMap
	KindRef
)

// Value is the tagged property value type.
//
// Exactly one of the variants is populated, selected by Kind(). The zero
// Value is the empty string, matching the admin API convention of
// reporting unset properties as "".
//
// Values are immutable once constructed; Map values are deep-copied on
// construction and on access so a Value can be shared freely.
type Value struct {
	kind ValueKind
	str  string
	b    bool
	i    int64
	m    map[string]Value
	ref  Identity
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// MapOf returns a map Value holding a deep copy of m.
func MapOf(m map[string]Value) Value {
	return Value{kind: KindMap, m: cloneValueMap(m)}
}

// Ref returns a Value referencing another entity's identity.
func Ref(id Identity) Value { return Value{kind: KindRef, ref: id} }

// Kind reports the populated variant.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant. ok is false for other kinds.
func (v Value) AsString() (s string, ok bool) { return v.str, v.kind == KindString }

// AsBool returns the boolean variant. ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer variant. ok is false for other kinds.
func (v Value) AsInt() (i int64, ok bool) { return v.i, v.kind == KindInt }

// AsMap returns a deep copy of the map variant. ok is false for other
// kinds.
func (v Value) AsMap() (m map[string]Value, ok bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return cloneValueMap(v.m), true
}

// AsRef returns the referenced identity. ok is false for other kinds.
func (v Value) AsRef() (id Identity, ok bool) { return v.ref, v.kind == KindRef }

// Equal reports deep value equality. Values of different kinds are never
// equal, even when their textual forms coincide.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindRef:
		return v.ref == o.ref
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// GoString renders the value for log output.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindRef:
		return "&" + string(v.ref)
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += k + ": " + v.m[k].GoString()
		}
		return out + "}"
	}
	return "<invalid>"
}

// MarshalJSON renders the natural JSON form of the value. References
// marshal as {"$ref": "<identity>"} so consumers can distinguish them
// from plain strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindRef:
		return json.Marshal(map[string]string{"$ref": string(v.ref)})
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("entity: cannot marshal value kind %d", v.kind)
}

func cloneValueMap(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for k, v := range m {
		if v.kind == KindMap {
			v = Value{kind: KindMap, m: cloneValueMap(v.m)}
		}
		out[k] = v
	}
	return out
}

// Snapshot is an entity's current property mapping. Ordering is
// irrelevant; the registry owns the authoritative copy.
type Snapshot map[string]Value

// Clone returns an independent deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return Snapshot(cloneValueMap(map[string]Value(s)))
}

// Diff returns the properties whose values in s differ from old,
// including properties absent from old. Properties present only in old
// are reported in the second return value.
func (s Snapshot) Diff(old Snapshot) (changed Snapshot, removed []string) {
	for name, v := range s {
		if prev, ok := old[name]; !ok || !prev.Equal(v) {
			if changed == nil {
				changed = make(Snapshot)
			}
			changed[name] = v
		}
	}
	for name := range old {
		if _, ok := s[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return changed, removed
}
