package crdt

import (
	"context"
	"net/http"
	"slices"

	"riakdt/backend"
	"riakdt/common"
)

// Map is an OR-map of named fields, either a resource of its own or a
// field of another map.
//
// Fields are staged by their wire name. Register, flag and remove entries
// stay staged for the life of the handle; counter and set fields drop what
// a successful save sent. Saving any map, or any field of one, sends the
// update of the root map.
type Map struct {
	node

	fields  map[string]stagedField
	removes []string
	values  Values

	// materialized holds the arena slot of each field node created from a
	// fetched value, so later fetches reseed it instead of growing the arena.
	materialized map[string]NodeID
}

func newRootMap(b *Bucket, key, namespace string) *Map {
	m := &Map{
		node:   node{bucket: b, key: key, namespace: namespace},
		fields: make(map[string]stagedField),
	}
	newTree(b.client).addLocked(m, noParent, "")
	return m
}

// newEmbeddedMap creates a map field of parent. The caller holds the tree
// lock.
func newEmbeddedMap(parent *Map, field string) *Map {
	m := &Map{
		node:   node{bucket: parent.bucket, key: field, namespace: parent.namespace},
		fields: make(map[string]stagedField),
	}
	parent.tree.addLocked(m, parent.id, field)
	return m
}

// Kind implements Node.
func (m *Map) Kind() common.Kind {
	return common.KindMap
}

// Register stages a register field.
func (m *Map) Register(field, value string) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.stageScalarLocked(field, common.KindRegister, value)
	return m
}

// RemoveRegister stages removal of a register field.
func (m *Map) RemoveRegister(field string) *Map {
	return m.RemoveField(field, common.KindRegister)
}

// Flag stages a flag field. true and "enable" enable the flag; any other
// value disables it.
func (m *Map) Flag(field string, value any) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.stageScalarLocked(field, common.KindFlag, flagValue(value))
	return m
}

// RemoveFlag stages removal of a flag field.
func (m *Map) RemoveFlag(field string) *Map {
	return m.RemoveField(field, common.KindFlag)
}

// Counter returns the counter staged for field, creating it if needed.
// Creating the field stages nothing until the counter is changed.
func (m *Map) Counter(field string) *Counter {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return m.counterLocked(field)
}

// PutCounter makes c the counter field. A handle from another tree is
// moved into this one along with its staged delta.
func (m *Map) PutCounter(field string, c *Counter) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.adoptLocked(field, c)
	return m
}

// RemoveCounter stages removal of a counter field.
func (m *Map) RemoveCounter(field string) *Map {
	return m.RemoveField(field, common.KindCounter)
}

// Set returns the set staged for field, creating it if needed, and stages
// elements for addition.
func (m *Map) Set(field string, elements ...string) *Set {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	s := m.setLocked(field)
	if len(elements) > 0 {
		s.stageLocked("set add", &s.adds, elements)
	}
	return s
}

// PutSet makes s the set field.
func (m *Map) PutSet(field string, s *Set) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.adoptLocked(field, s)
	return m
}

// RemoveSet stages removal of a set field.
func (m *Map) RemoveSet(field string) *Map {
	return m.RemoveField(field, common.KindSet)
}

// Map returns the map staged for field, creating it if needed.
func (m *Map) Map(field string) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return m.mapLocked(field)
}

// MapFrom returns the map field populated from a plain value by
// DefineMapByObject.
func (m *Map) MapFrom(field string, obj map[string]any) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	child := m.mapLocked(field)
	child.defineLocked(obj)
	return child
}

// PutMap makes child the map field, moving its staged fields along.
func (m *Map) PutMap(field string, child *Map) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.adoptLocked(field, child)
	return m
}

// RemoveMap stages removal of a map field.
func (m *Map) RemoveMap(field string) *Map {
	return m.RemoveField(field, common.KindMap)
}

// RemoveField stages removal of the field with the given kind.
func (m *Map) RemoveField(field string, kind common.Kind) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	if !kind.Valid() {
		m.tree.failLocked(&common.ValidationError{
			Op:      "map remove",
			Message: "unknown field kind",
			Value:   kind,
		})
		return m
	}
	m.removes = append(m.removes, Encode(field, kind))
	m.tree.attachLocked(m.id)
	return m
}

// DefineMapByObject stages every entry of obj as a field, choosing the
// field kind from the entry's value. See classify for the rules.
func (m *Map) DefineMapByObject(obj map[string]any) *Map {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.defineLocked(obj)
	return m
}

// UpdateStructure returns the update document the next save would send
// for this map, without its removals.
func (m *Map) UpdateStructure() map[string]any {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return m.updateLocked(newSnapshot())
}

// Removals returns the staged field removals.
func (m *Map) Removals() []string {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return slices.Clone(m.removes)
}

// Value returns the map's materialized value. A root map returns its
// cached value or fetches and caches one; an embedded map reads its field
// from the root's value.
//
// Values share their field handles with later values of the same map: a
// fetch reseeds the handles instead of creating new ones.
func (m *Map) Value(ctx context.Context) (Values, error) {
	m.tree.mu.Lock()
	root := m.tree.isRootLocked(m.id)
	if v := m.values; v != nil && (root || m.tree.seedsValidLocked()) {
		m.tree.mu.Unlock()
		return v, nil
	}
	m.tree.mu.Unlock()

	if !root {
		return m.fromParent(ctx)
	}
	return m.Fetch(ctx)
}

// Fetch reads the root resource again and returns the map's value from it.
func (m *Map) Fetch(ctx context.Context) (Values, error) {
	t := m.tree
	t.mu.Lock()
	root, _ := t.rootLocked().(*Map)
	t.mu.Unlock()

	if root != m {
		if root == nil {
			return nil, &common.ProtocolError{Message: "map is not held by a map"}
		}
		if _, err := root.Fetch(ctx); err != nil {
			return nil, err
		}
		return m.fromParent(ctx)
	}

	resp, err := t.fetch(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := m.absorb(resp); err != nil {
		return nil, err
	}
	return m.values, nil
}

func (m *Map) fromParent(ctx context.Context) (Values, error) {
	m.tree.mu.Lock()
	parent, field := m.parentMapLocked()
	m.tree.mu.Unlock()
	if parent == nil {
		return nil, nil
	}

	values, err := parent.Value(ctx)
	if err != nil {
		return nil, err
	}

	m.tree.mu.Lock()
	if v := m.values; v != nil && m.tree.seedsValidLocked() {
		m.tree.mu.Unlock()
		return v, nil
	}
	m.tree.mu.Unlock()

	if child := values.Map(field); child != nil && child != m {
		return child.Value(ctx)
	}
	return nil, nil
}

// ValueAsync runs Value in the background.
func (m *Map) ValueAsync(ctx context.Context) *Future[Values] {
	return Go(func() (Values, error) {
		return m.Value(ctx)
	})
}

// Get implements Node.
func (m *Map) Get(ctx context.Context) (any, error) {
	return m.Value(ctx)
}

func (m *Map) stageScalarLocked(field string, kind common.Kind, value string) {
	m.fields[Encode(field, kind)] = stagedField{kind: kind, value: value}
	m.tree.attachLocked(m.id)
}

// childLocked returns the staged child of kind for field, or stages the
// materialized child or else the node built by create.
func (m *Map) childLocked(field string, kind common.Kind, create func() Node) Node {
	wire := Encode(field, kind)
	if f, ok := m.fields[wire]; ok && f.kind == kind {
		return m.tree.nodes[f.child]
	}
	child := m.heldLocked(m.materialized[wire], field, kind)
	if child == nil {
		child = create()
	}
	m.fields[wire] = stagedField{kind: kind, child: child.ID()}
	m.tree.attachLocked(m.id)
	return child
}

// heldLocked returns the node at id if it is still m's field of kind.
func (m *Map) heldLocked(id NodeID, field string, kind common.Kind) Node {
	t := m.tree
	if id <= 0 || int(id) >= len(t.nodes) {
		return nil
	}
	n := t.nodes[id]
	if n.base().tree != t || n.ID() != id || n.Kind() != kind {
		return nil
	}
	if t.parents[id] != m.id || t.fields[id] != field {
		return nil
	}
	return n
}

// fieldNodeLocked returns the node for a fetched field: the staged child,
// else the one materialized by an earlier fetch, else a new node.
func (m *Map) fieldNodeLocked(wire, field string, kind common.Kind, create func() Node) Node {
	if f, ok := m.fields[wire]; ok && f.kind == kind {
		if n := m.heldLocked(f.child, field, kind); n != nil {
			return n
		}
	}
	if n := m.heldLocked(m.materialized[wire], field, kind); n != nil {
		return n
	}
	n := create()
	if m.materialized == nil {
		m.materialized = make(map[string]NodeID)
	}
	m.materialized[wire] = n.ID()
	return n
}

// childrenLocked returns the staged and materialized field nodes of m.
func (m *Map) childrenLocked() []Node {
	var out []Node
	seen := make(map[NodeID]bool)
	add := func(id NodeID, wire string) {
		name, kind, ok := Decode(wire)
		if !ok || seen[id] {
			return
		}
		if n := m.heldLocked(id, name, kind); n != nil {
			seen[id] = true
			out = append(out, n)
		}
	}
	for wire, f := range m.fields {
		switch f.kind {
		case common.KindCounter, common.KindSet, common.KindMap:
			add(f.child, wire)
		case common.KindRegister, common.KindFlag, common.KindUnknown:
		}
	}
	for wire, id := range m.materialized {
		add(id, wire)
	}
	return out
}

func (m *Map) counterLocked(field string) *Counter {
	return m.childLocked(field, common.KindCounter, func() Node {
		return newEmbeddedCounter(m, field, nil)
	}).(*Counter)
}

func (m *Map) setLocked(field string) *Set {
	return m.childLocked(field, common.KindSet, func() Node {
		return newEmbeddedSet(m, field, nil, false)
	}).(*Set)
}

func (m *Map) mapLocked(field string) *Map {
	return m.childLocked(field, common.KindMap, func() Node {
		return newEmbeddedMap(m, field)
	}).(*Map)
}

// adoptLocked stages n as field, moving it into this tree if needed.
func (m *Map) adoptLocked(field string, n Node) {
	t := m.tree
	b := n.base()
	kind := n.Kind()

	if b.tree == t {
		if t.isAncestorLocked(b.id, m.id) {
			t.failLocked(&common.ValidationError{
				Op:      "map put",
				Message: "a map cannot hold itself or an ancestor",
				Value:   field,
			})
			return
		}
		t.unstageLocked(b.id)
		t.parents[b.id] = m.id
		t.fields[b.id] = field
		t.resetSeedsLocked(n)
	} else {
		b.tree.unstageLocked(b.id)
		t.moveLocked(n, b.tree, m.id, field)
	}

	b.bucket = m.bucket
	b.key = field
	b.namespace = m.namespace

	m.fields[Encode(field, kind)] = stagedField{kind: kind, child: b.id}
	t.attachLocked(m.id)
}

// updateLocked builds the "update" document of the map. Children with
// nothing to send are left out.
func (m *Map) updateLocked(s *snapshot) map[string]any {
	update := make(map[string]any, len(m.fields))
	for wire, f := range m.fields {
		switch f.kind {
		case common.KindRegister, common.KindFlag:
			update[wire] = f.value
		case common.KindCounter, common.KindSet, common.KindMap:
			if frag, ok := m.tree.nodes[f.child].fragment(s); ok {
				update[wire] = frag
			}
		case common.KindUnknown:
		}
	}
	return update
}

func (m *Map) operationLocked(s *snapshot) (map[string]any, bool) {
	update := m.updateLocked(s)
	if len(update) == 0 && len(m.removes) == 0 {
		return nil, false
	}
	op := map[string]any{"update": update}
	if len(m.removes) > 0 {
		op["remove"] = slices.Clone(m.removes)
	}
	return op, true
}

func (m *Map) fragment(s *snapshot) (any, bool) {
	return m.operationLocked(s)
}

func (m *Map) request(s *snapshot) (*backend.Query, error) {
	op, ok := m.operationLocked(s)
	if !ok {
		return nil, nil
	}
	path := m.resourcePath()
	if m.client().options.ReturnBody {
		path += "?returnbody=true"
	}
	return backend.NewQuery(http.MethodPost, path).WithJSON(op)
}

// absorb replaces the cached value with the one in resp. The caller holds
// the tree lock.
func (m *Map) absorb(resp *backend.Response) error {
	var body map[string]any
	if err := resp.Decode(&body); err != nil {
		return &common.ProtocolError{Path: m.resourcePath(), Message: err.Error()}
	}
	raw, ok := body["value"].(map[string]any)
	if !ok {
		return &common.ProtocolError{Path: m.resourcePath(), Message: "map response has no value"}
	}
	values, err := materializeLocked(m, raw)
	if err != nil {
		return err
	}
	m.values = values
	return nil
}

func (m *Map) invalidate() {
	m.values = nil
}

func flagValue(v any) string {
	if v == true || v == common.FlagEnable {
		return common.FlagEnable
	}
	return common.FlagDisable
}
