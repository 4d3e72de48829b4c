package crdt

import (
	"context"
	"net/http"
	"slices"

	"riakdt/backend"
	"riakdt/common"
)

// Set is an OR-set of strings, either a resource of its own or a map
// field. Adds and removes accumulate until a save succeeds; the store
// decides the outcome when one update both adds and removes an element.
type Set struct {
	node

	adds    []string
	removes []string

	seed   []string
	seeded bool
}

func newRootSet(b *Bucket, key, namespace string) *Set {
	s := &Set{node: node{bucket: b, key: key, namespace: namespace}}
	newTree(b.client).addLocked(s, noParent, "")
	return s
}

// newEmbeddedSet creates a set field of parent. The caller holds the tree
// lock.
func newEmbeddedSet(parent *Map, field string, seed []string, seeded bool) *Set {
	s := &Set{
		node:   node{bucket: parent.bucket, key: field, namespace: parent.namespace},
		seed:   seed,
		seeded: seeded,
	}
	parent.tree.addLocked(s, parent.id, field)
	return s
}

// Kind implements Node.
func (s *Set) Kind() common.Kind {
	return common.KindSet
}

// Add stages elements for addition. Calling it with no elements records a
// validation error for the next Save.
func (s *Set) Add(elements ...string) *Set {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	s.stageLocked("set add", &s.adds, elements)
	return s
}

// Remove stages elements for removal. Removing an element the store does
// not hold fails at save time.
func (s *Set) Remove(elements ...string) *Set {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	s.stageLocked("set remove", &s.removes, elements)
	return s
}

func (s *Set) stageLocked(op string, list *[]string, elements []string) {
	if len(elements) == 0 {
		s.tree.failLocked(&common.ValidationError{Op: op, Message: "at least one element is required"})
		return
	}
	*list = append(*list, elements...)
	s.tree.attachLocked(s.id)
}

// Pending returns copies of the staged adds and removes.
func (s *Set) Pending() (adds, removes []string) {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return slices.Clone(s.adds), slices.Clone(s.removes)
}

// Operation returns the update fragment the next save would send for
// this set.
func (s *Set) Operation() map[string]any {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return setOperation(s.adds, s.removes)
}

// Value returns the set's elements. An embedded set reads its field from
// the root map's cached value, fetching the root when nothing is cached. A
// root set reads the store and returns nil when the response carries no
// value.
func (s *Set) Value(ctx context.Context) ([]string, error) {
	t := s.tree
	t.mu.Lock()
	if s.seeded && t.seedsValidLocked() {
		v := slices.Clone(s.seed)
		t.mu.Unlock()
		return v, nil
	}
	parent, field := s.parentMapLocked()
	t.mu.Unlock()

	if parent != nil {
		values, err := parent.Value(ctx)
		if err != nil {
			return nil, err
		}
		if v, ok := s.freshSeed(); ok {
			return v, nil
		}
		if child := values.Set(field); child != nil && child != s {
			return child.Value(ctx)
		}
		return nil, nil
	}

	resp, err := t.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if err := resp.Decode(&body); err != nil {
		return nil, &common.ProtocolError{Path: s.resourcePath(), Message: err.Error()}
	}
	raw, ok := body["value"]
	if !ok || raw == nil {
		return nil, nil
	}
	elements, err := stringElements(raw)
	if err != nil {
		return nil, &common.ProtocolError{Path: s.resourcePath(), Message: err.Error()}
	}
	return elements, nil
}

// ValueAsync runs Value in the background.
func (s *Set) ValueAsync(ctx context.Context) *Future[[]string] {
	return Go(func() ([]string, error) {
		return s.Value(ctx)
	})
}

// Get implements Node.
func (s *Set) Get(ctx context.Context) (any, error) {
	return s.Value(ctx)
}

func (s *Set) fragment(snap *snapshot) (any, bool) {
	if len(s.adds) == 0 && len(s.removes) == 0 {
		return nil, false
	}
	snap.set(s, s.adds, s.removes)
	return setOperation(s.adds, s.removes), true
}

func (s *Set) request(snap *snapshot) (*backend.Query, error) {
	op, ok := s.fragment(snap)
	if !ok {
		return nil, nil
	}
	return backend.NewQuery(http.MethodPost, s.resourcePath()).WithJSON(op)
}

// Root sets always read the store, so there is nothing to refresh.
func (s *Set) absorb(*backend.Response) error { return nil }

func (s *Set) invalidate() {}
