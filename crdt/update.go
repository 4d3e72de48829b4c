package crdt

import (
	"slices"

	"riakdt/common"
)

// stagedField is one pending entry of a map update. Scalars carry their
// wire value; counters, sets and maps point at the child node.
type stagedField struct {
	kind  common.Kind
	value string
	child NodeID
}

// snapshot remembers what a request carried so a successful save clears
// exactly that and nothing staged while the request was in flight.
type snapshot struct {
	counters map[*Counter]int64
	sets     map[*Set]sentElements
}

type sentElements struct {
	adds    []string
	removes []string
}

func newSnapshot() *snapshot {
	return &snapshot{
		counters: make(map[*Counter]int64),
		sets:     make(map[*Set]sentElements),
	}
}

func (s *snapshot) counter(c *Counter, delta int64) {
	s.counters[c] = delta
}

func (s *snapshot) set(set *Set, adds, removes []string) {
	s.sets[set] = sentElements{
		adds:    slices.Clone(adds),
		removes: slices.Clone(removes),
	}
}

// commit drops sent deltas and elements. The caller holds the tree lock.
func (s *snapshot) commit() {
	for c, delta := range s.counters {
		if c.delta == delta {
			c.delta = 0
		}
	}
	for set, sent := range s.sets {
		set.adds = trimSent(set.adds, sent.adds)
		set.removes = trimSent(set.removes, sent.removes)
	}
}

// trimSent removes sent from the front of staged. Elements are only ever
// appended, so the sent ones are a prefix unless another save already
// cleared them.
func trimSent(staged, sent []string) []string {
	if len(sent) == 0 || len(staged) < len(sent) || !slices.Equal(staged[:len(sent)], sent) {
		return staged
	}
	rest := staged[len(sent):]
	if len(rest) == 0 {
		return nil
	}
	return slices.Clone(rest)
}

// setOperation builds the add/remove part of a set update. A single
// element uses the singular key, several use the _all key with an array.
func setOperation(adds, removes []string) map[string]any {
	op := make(map[string]any, 2)
	switch len(adds) {
	case 0:
	case 1:
		op["add"] = adds[0]
	default:
		op["add_all"] = slices.Clone(adds)
	}
	switch len(removes) {
	case 0:
	case 1:
		op["remove"] = removes[0]
	default:
		op["remove_all"] = slices.Clone(removes)
	}
	return op
}
