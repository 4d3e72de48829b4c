package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Values is a fetched map value keyed by logical field name. Registers
// hold their raw value, flags a bool, and counter, set and map fields the
// embedded handle built from the fetched document.
type Values map[string]any

// Register returns a register field.
func (v Values) Register(name string) (string, bool) {
	raw, ok := v[name]
	if !ok {
		return "", false
	}
	switch r := raw.(type) {
	case string:
		return r, true
	case nil:
		return "", true
	default:
		return fmt.Sprint(r), true
	}
}

// Flag returns a flag field; absent flags are false.
func (v Values) Flag(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Counter returns a counter field, or nil.
func (v Values) Counter(name string) *Counter {
	c, _ := v[name].(*Counter)
	return c
}

// Set returns a set field, or nil.
func (v Values) Set(name string) *Set {
	s, _ := v[name].(*Set)
	return s
}

// Map returns a map field, or nil.
func (v Values) Map(name string) *Map {
	m, _ := v[name].(*Map)
	return m
}

// Names returns the field names in order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plain returns the value as plain Go data: counters as int64, sets as
// []string and maps as nested map[string]any.
func (v Values) Plain() map[string]any {
	out := make(map[string]any, len(v))
	for name, raw := range v {
		switch f := raw.(type) {
		case *Counter:
			out[name] = f.seedValue()
		case *Set:
			out[name] = f.seedValue()
		case *Map:
			out[name] = f.seedValue().Plain()
		default:
			out[name] = f
		}
	}
	return out
}

// MarshalJSON encodes the plain form.
func (v Values) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Plain())
}

// seedValue returns the fetched value of a materialized counter.
func (c *Counter) seedValue() int64 {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	if c.seed == nil {
		return 0
	}
	return *c.seed
}

func (s *Set) seedValue() []string {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if s.seed == nil {
		return []string{}
	}
	return append([]string(nil), s.seed...)
}

// freshSeed returns the seed when the root's cached value still backs it.
func (c *Counter) freshSeed() (int64, bool) {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	if c.seed == nil || !c.tree.seedsValidLocked() {
		return 0, false
	}
	return *c.seed, true
}

func (s *Set) freshSeed() ([]string, bool) {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if !s.seeded || !s.tree.seedsValidLocked() {
		return nil, false
	}
	return append([]string(nil), s.seed...), true
}

func (m *Map) seedValue() Values {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return m.values
}
