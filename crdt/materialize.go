package crdt

import (
	"fmt"

	"riakdt/common"
)

// materializeLocked turns the value document of map m into Values. Counter,
// set and map fields become embedded nodes of m seeded with their fetched
// value; entries without a known kind suffix are skipped. A field node
// staged or materialized earlier is reseeded in place, so repeated fetches
// do not grow the arena. The caller holds the tree lock.
func materializeLocked(m *Map, raw map[string]any) (Values, error) {
	// Fields missing from raw must not keep an older fetch's value.
	for _, child := range m.childrenLocked() {
		m.tree.resetSeedsLocked(child)
	}

	values := make(Values, len(raw))
	for wire, v := range raw {
		name, kind, ok := Decode(wire)
		if !ok {
			continue
		}

		switch kind {
		case common.KindRegister:
			values[name] = v
		case common.KindFlag:
			values[name] = v == true || v == common.FlagEnable
		case common.KindCounter:
			n, ok := integerValue(v)
			if !ok {
				return nil, &common.ProtocolError{Path: m.resourcePathLocked(), Message: fmt.Sprintf("counter field %s is not an integer", wire)}
			}
			c := m.fieldNodeLocked(wire, name, kind, func() Node {
				return newEmbeddedCounter(m, name, nil)
			}).(*Counter)
			c.seed = &n
			values[name] = c
		case common.KindSet:
			elements, err := stringElements(v)
			if err != nil {
				return nil, &common.ProtocolError{Path: m.resourcePathLocked(), Message: fmt.Sprintf("set field %s: %v", wire, err)}
			}
			s := m.fieldNodeLocked(wire, name, kind, func() Node {
				return newEmbeddedSet(m, name, nil, false)
			}).(*Set)
			s.seed, s.seeded = elements, true
			values[name] = s
		case common.KindMap:
			sub, ok := v.(map[string]any)
			if !ok {
				return nil, &common.ProtocolError{Path: m.resourcePathLocked(), Message: fmt.Sprintf("map field %s is not an object", wire)}
			}
			child := m.fieldNodeLocked(wire, name, kind, func() Node {
				return newEmbeddedMap(m, name)
			}).(*Map)
			childValues, err := materializeLocked(child, sub)
			if err != nil {
				return nil, err
			}
			child.values = childValues
			values[name] = child
		case common.KindUnknown:
		}
	}
	return values, nil
}

// resourcePathLocked is the path of the resource holding m.
func (m *Map) resourcePathLocked() string {
	return m.tree.rootLocked().base().resourcePath()
}

func stringElements(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("set value is not an array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("set element %v is not a string", item)
		}
		out = append(out, s)
	}
	return out, nil
}
