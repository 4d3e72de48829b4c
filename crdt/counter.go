package crdt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"riakdt/backend"
	"riakdt/common"
)

// Counter is a PN-counter, either a resource of its own or a map field.
//
// Add stages a delta; the latest call replaces any earlier unsaved delta.
// A successful save clears the delta it sent, so a later save never applies
// the same increment twice.
type Counter struct {
	node

	delta int64
	seed  *int64
}

func newRootCounter(b *Bucket, key, namespace string) *Counter {
	c := &Counter{node: node{bucket: b, key: key, namespace: namespace}}
	newTree(b.client).addLocked(c, noParent, "")
	return c
}

// newEmbeddedCounter creates a counter field of parent. The caller holds
// the tree lock.
func newEmbeddedCounter(parent *Map, field string, seed *int64) *Counter {
	c := &Counter{
		node: node{bucket: parent.bucket, key: field, namespace: parent.namespace},
		seed: seed,
	}
	parent.tree.addLocked(c, parent.id, field)
	return c
}

// Kind implements Node.
func (c *Counter) Kind() common.Kind {
	return common.KindCounter
}

// Legacy reports whether the counter uses the legacy counter resource.
func (c *Counter) Legacy() bool {
	return c.namespace == common.LegacyNamespace
}

// Add stages amount as the pending delta. A zero amount is recorded as a
// validation error that the next Save returns without sending anything.
func (c *Counter) Add(amount int64) *Counter {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	c.addLocked(amount, amount)
	return c
}

// AddValue is Add for untyped input: any integer type or a base-10
// integer string.
func (c *Counter) AddValue(v any) *Counter {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()

	amount, ok := integerValue(v)
	if !ok {
		c.tree.failLocked(&common.ValidationError{
			Op:      "counter add",
			Message: "amount must be an integer",
			Value:   v,
		})
		return c
	}
	c.addLocked(amount, v)
	return c
}

// Subtract stages -amount as the pending delta.
func (c *Counter) Subtract(amount int64) *Counter {
	return c.Add(-amount)
}

// Increment stages amount and saves.
func (c *Counter) Increment(ctx context.Context, amount int64) error {
	return c.Add(amount).Save(ctx)
}

func (c *Counter) addLocked(amount int64, input any) {
	if amount == 0 {
		c.tree.failLocked(&common.ValidationError{
			Op:      "counter add",
			Message: "amount must be a non-zero integer",
			Value:   input,
		})
		return
	}
	c.delta = amount
	c.tree.attachLocked(c.id)
}

// Pending returns the staged delta.
func (c *Counter) Pending() int64 {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	return c.delta
}

// Value returns the counter's value. An embedded counter reads its field
// from the root map's cached value, fetching the root when nothing is
// cached, and is 0 when the field is absent. A root counter reads the
// store.
func (c *Counter) Value(ctx context.Context) (int64, error) {
	t := c.tree
	t.mu.Lock()
	if c.seed != nil && t.seedsValidLocked() {
		v := *c.seed
		t.mu.Unlock()
		return v, nil
	}
	parent, field := c.parentMapLocked()
	t.mu.Unlock()

	if parent != nil {
		values, err := parent.Value(ctx)
		if err != nil {
			return 0, err
		}
		if v, ok := c.freshSeed(); ok {
			return v, nil
		}
		if child := values.Counter(field); child != nil && child != c {
			return child.Value(ctx)
		}
		return 0, nil
	}

	resp, err := t.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return c.parse(resp)
}

// ValueAsync runs Value in the background.
func (c *Counter) ValueAsync(ctx context.Context) *Future[int64] {
	return Go(func() (int64, error) {
		return c.Value(ctx)
	})
}

// Get implements Node.
func (c *Counter) Get(ctx context.Context) (any, error) {
	return c.Value(ctx)
}

func (c *Counter) parse(resp *backend.Response) (int64, error) {
	path := c.resourcePath()
	if c.Legacy() {
		n, err := strconv.ParseInt(strings.TrimSpace(string(resp.Body)), 10, 64)
		if err != nil {
			return 0, &common.ProtocolError{Path: path, Message: "counter body is not an integer"}
		}
		return n, nil
	}

	var body struct {
		Value *json.Number `json:"value"`
	}
	if err := resp.Decode(&body); err != nil {
		return 0, &common.ProtocolError{Path: path, Message: err.Error()}
	}
	if body.Value == nil {
		return 0, &common.ProtocolError{Path: path, Message: "counter response has no value"}
	}
	n, err := body.Value.Int64()
	if err != nil {
		return 0, &common.ProtocolError{Path: path, Message: fmt.Sprintf("counter value %s is not an integer", *body.Value)}
	}
	return n, nil
}

func (c *Counter) fragment(s *snapshot) (any, bool) {
	if c.delta == 0 {
		return nil, false
	}
	s.counter(c, c.delta)
	return c.delta, true
}

func (c *Counter) request(s *snapshot) (*backend.Query, error) {
	if c.delta == 0 {
		return nil, nil
	}
	s.counter(c, c.delta)

	q := backend.NewQuery(http.MethodPost, c.resourcePath())
	if c.Legacy() {
		return q.WithText(strconv.FormatInt(c.delta, 10)), nil
	}
	return q.WithJSON(map[string]any{"increment": c.delta})
}

// Root counters always read the store, so there is nothing to refresh.
func (c *Counter) absorb(*backend.Response) error { return nil }

func (c *Counter) invalidate() {}

// integerValue converts the integer kinds, whole floats and base-10
// strings to int64.
func integerValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
