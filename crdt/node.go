package crdt

import (
	"context"

	"riakdt/backend"
	"riakdt/common"
)

// NodeID is a node's index in the arena of the tree it belongs to.
type NodeID int

const noParent NodeID = -1

// Node is a data type handle: a Counter, a Set or a Map.
type Node interface {
	// ID returns the node's index in its tree.
	ID() NodeID

	// Kind returns the data type of the node.
	Kind() common.Kind

	// Bucket returns the bucket of the resource holding the node.
	Bucket() string

	// Key returns the resource key of a root node, or the field name of an
	// embedded one.
	Key() string

	// Namespace returns the bucket type of the resource holding the node.
	Namespace() string

	// Path returns the resource the node is saved to. Embedded nodes
	// return their root's path.
	Path() string

	// IsRoot reports whether the node is an addressable resource.
	IsRoot() bool

	// Save sends the staged mutations of the node's whole tree.
	Save(ctx context.Context) error

	// SaveAsync runs Save in the background.
	SaveAsync(ctx context.Context) *Future[struct{}]

	// Get returns the node's value: int64, []string or Values.
	Get(ctx context.Context) (any, error)

	base() *node
	fragment(s *snapshot) (any, bool)
	request(s *snapshot) (*backend.Query, error)
	absorb(resp *backend.Response) error
	invalidate()
}

// node holds what every variant shares: its place in a tree and the
// address of the resource it lives in.
type node struct {
	tree      *tree
	id        NodeID
	bucket    *Bucket
	key       string
	namespace string
}

func (n *node) base() *node {
	return n
}

// ID implements Node.
func (n *node) ID() NodeID {
	return n.id
}

// Bucket implements Node.
func (n *node) Bucket() string {
	return n.bucket.name
}

// Key implements Node.
func (n *node) Key() string {
	return n.key
}

// Namespace implements Node.
func (n *node) Namespace() string {
	return n.namespace
}

// IsRoot implements Node.
func (n *node) IsRoot() bool {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.tree.isRootLocked(n.id)
}

// Path implements Node.
func (n *node) Path() string {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.tree.rootLocked().base().resourcePath()
}

// Save implements Node.
func (n *node) Save(ctx context.Context) error {
	return n.tree.save(ctx)
}

// SaveAsync implements Node.
func (n *node) SaveAsync(ctx context.Context) *Future[struct{}] {
	return Go(func() (struct{}, error) {
		return struct{}{}, n.Save(ctx)
	})
}

func (n *node) client() *Client {
	return n.bucket.client
}

// resourcePath is the path of a root node's resource.
func (n *node) resourcePath() string {
	c := n.client()
	if n.namespace == common.LegacyNamespace {
		return c.legacyCounterPath(n.bucket.name, n.key)
	}
	return c.typedPath(n.namespace, n.bucket.name, n.key)
}

// parentMapLocked returns the map holding an embedded node and the node's
// field name within it.
func (n *node) parentMapLocked() (*Map, string) {
	t := n.tree
	p := t.parents[n.id]
	if p == noParent {
		return nil, ""
	}
	return t.nodes[p].(*Map), t.fields[n.id]
}

var (
	_ Node = (*Counter)(nil)
	_ Node = (*Set)(nil)
	_ Node = (*Map)(nil)
)
