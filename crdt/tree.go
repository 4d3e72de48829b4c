package crdt

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"riakdt/backend"
	"riakdt/common"
)

// tree is the arena holding a root node and everything embedded in it.
// Parent links are indexes into the arena, so children never own or point
// at their parents.
//
// The mutex guards the staged state of every node in the tree. It is not
// held during I/O.
type tree struct {
	mu      sync.Mutex
	client  *Client
	nodes   []Node
	parents []NodeID
	fields  []string

	// err is the first validation error recorded since the last save.
	err error
}

func newTree(client *Client) *tree {
	return &tree{client: client}
}

// addLocked appends n to the arena and binds it to the tree.
func (t *tree) addLocked(n Node, parent NodeID, field string) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.parents = append(t.parents, parent)
	t.fields = append(t.fields, field)

	b := n.base()
	b.tree = t
	b.id = id
	return id
}

func (t *tree) isRootLocked(id NodeID) bool {
	return t.parents[id] == noParent
}

func (t *tree) rootLocked() Node {
	return t.nodes[0]
}

// isAncestorLocked reports whether a is b or one of b's ancestors.
func (t *tree) isAncestorLocked(a, b NodeID) bool {
	for id := b; id != noParent; id = t.parents[id] {
		if id == a {
			return true
		}
	}
	return false
}

// seedsValidLocked reports whether the seeds of embedded nodes come from
// the value the root map currently caches. Dropping that value stales them
// all at once.
func (t *tree) seedsValidLocked() bool {
	root, ok := t.rootLocked().(*Map)
	return ok && root.values != nil
}

// unstageLocked removes the node from its parent's staged and materialized
// fields, if it is still the node held there.
func (t *tree) unstageLocked(id NodeID) {
	p := t.parents[id]
	if p == noParent {
		return
	}
	old := t.nodes[p].(*Map)
	wire := Encode(t.fields[id], t.nodes[id].Kind())
	if f, ok := old.fields[wire]; ok && f.child == id {
		delete(old.fields, wire)
	}
	if mid, ok := old.materialized[wire]; ok && mid == id {
		delete(old.materialized, wire)
	}
}

// clearSeedLocked forgets the fetched value of n.
func clearSeedLocked(n Node) {
	switch v := n.(type) {
	case *Counter:
		v.seed = nil
	case *Set:
		v.seed, v.seeded = nil, false
	case *Map:
		v.values = nil
	}
}

// resetSeedsLocked forgets the fetched values of n and every node below it.
func (t *tree) resetSeedsLocked(n Node) {
	clearSeedLocked(n)
	if m, ok := n.(*Map); ok {
		for _, child := range m.childrenLocked() {
			t.resetSeedsLocked(child)
		}
	}
}

// moveLocked appends n and its staged descendants from another tree. The
// caller holds t's lock; the old tree must not be in use.
func (t *tree) moveLocked(n Node, from *tree, parent NodeID, field string) {
	t.addLocked(n, parent, field)
	if parent != noParent {
		b, pb := n.base(), t.nodes[parent].base()
		b.bucket = pb.bucket
		b.namespace = pb.namespace
	}
	clearSeedLocked(n)

	child, ok := n.(*Map)
	if !ok {
		return
	}
	child.materialized = nil
	for wire, f := range child.fields {
		switch f.kind {
		case common.KindCounter, common.KindSet, common.KindMap:
			grandchild := from.nodes[f.child]
			t.moveLocked(grandchild, from, child.id, from.fields[f.child])
			f.child = grandchild.ID()
			child.fields[wire] = f
		case common.KindRegister, common.KindFlag, common.KindUnknown:
		}
	}
}

// failLocked records a validation error for the next save to report.
func (t *tree) failLocked(err error) {
	if t.err == nil {
		t.err = err
	}
}

// attachLocked makes sure the node and each of its ancestors is staged in
// its parent map, so the next save carries the node's mutations.
func (t *tree) attachLocked(id NodeID) {
	for t.parents[id] != noParent {
		p := t.parents[id]
		parent := t.nodes[p].(*Map)
		child := t.nodes[id]
		wire := Encode(t.fields[id], child.Kind())

		if f, ok := parent.fields[wire]; ok && f.child == id {
			return
		}
		parent.fields[wire] = stagedField{kind: child.Kind(), child: id}
		id = p
	}
}

// save sends the staged update of the whole tree in one request.
func (t *tree) save(ctx context.Context) error {
	t.mu.Lock()
	if err := t.err; err != nil {
		t.err = nil
		t.mu.Unlock()
		return err
	}

	root := t.rootLocked()
	snap := newSnapshot()
	q, err := root.request(snap)
	t.mu.Unlock()

	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}

	logger := t.client.logger.With(zap.String("method", q.Method), zap.String("path", q.Path))
	logger.Debug("save", zap.ByteString("body", q.Body))

	resp, err := t.client.backend.Query(ctx, q)
	if err != nil {
		logger.Debug("save failed", zap.Error(err))
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snap.commit()
	if len(resp.Body) > 0 && resp.StatusCode == http.StatusOK && t.client.options.ReturnBody {
		return root.absorb(resp)
	}
	root.invalidate()
	return nil
}

// fetch reads the root resource.
func (t *tree) fetch(ctx context.Context) (*backend.Response, error) {
	t.mu.Lock()
	path := t.rootLocked().base().resourcePath()
	t.mu.Unlock()

	resp, err := t.client.backend.Query(ctx, backend.NewQuery(http.MethodGet, path))
	if err != nil {
		t.client.logger.Debug("fetch failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return resp, nil
}
