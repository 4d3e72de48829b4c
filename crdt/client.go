// Package crdt models the store's replicated data types on the client.
//
// Counter, Set and Map handles stage mutations locally. Nothing is sent
// until Save is called on a handle; a Save on a field nested anywhere in a
// map sends the whole map's staged update in one request.
//
//	client := crdt.NewClient(httpClient)
//	profile := client.Bucket("users").Map("alice")
//	profile.Register("name", "Alice").Flag("active", true)
//	profile.Counter("logins").Add(1)
//	profile.Set("tags", "admin", "ops")
//	if err := profile.Save(ctx); err != nil {
//	    return err
//	}
//
//	values, err := profile.Value(ctx)
//	name, _ := values.Register("name")
package crdt

import (
	"net/url"

	"go.uber.org/zap"

	"riakdt/backend"
	"riakdt/common"
	"riakdt/core"
)

// Client creates data type handles that talk to the store through a
// backend.Client.
type Client struct {
	backend backend.Client
	options *Options
	logger  *zap.Logger
}

// NewClient creates a client over b.
func NewClient(b backend.Client, opts ...Option) *Client {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = core.Named("crdt")
	}

	return &Client{
		backend: b,
		options: options,
		logger:  logger,
	}
}

// Options returns a copy of the client's options.
func (c *Client) Options() Options {
	return *c.options
}

// Bucket returns a handle factory for the named bucket.
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{client: c, name: name}
}

func (c *Client) typedPath(namespace, bucket, key string) string {
	return c.options.TypesPrefix + "/" + url.PathEscape(namespace) +
		"/buckets/" + url.PathEscape(bucket) +
		"/datatypes/" + url.PathEscape(key)
}

func (c *Client) legacyCounterPath(bucket, key string) string {
	return c.options.BucketsPrefix + "/" + url.PathEscape(bucket) +
		"/counters/" + url.PathEscape(key)
}

// Bucket creates root handles for keys of one bucket.
type Bucket struct {
	client *Client
	name   string
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Client returns the client the bucket belongs to.
func (b *Bucket) Client() *Client {
	return b.client
}

// Counter returns a root counter handle in the default counter bucket type.
func (b *Bucket) Counter(key string, opts ...HandleOption) *Counter {
	ns := resolveNamespace(b.client.options.CounterNamespace, opts)
	return newRootCounter(b, key, ns)
}

// LegacyCounter returns a counter addressed by the legacy counter resource.
func (b *Bucket) LegacyCounter(key string) *Counter {
	return b.Counter(key, InNamespace(common.LegacyNamespace))
}

// Set returns a root set handle in the default set bucket type. Sets have
// no legacy resource, so an empty namespace means the default.
func (b *Bucket) Set(key string, opts ...HandleOption) *Set {
	ns := resolveNamespace(b.client.options.SetNamespace, opts)
	if ns == common.LegacyNamespace {
		ns = b.client.options.SetNamespace
	}
	return newRootSet(b, key, ns)
}

// Map returns a root map handle in the default map bucket type.
func (b *Bucket) Map(key string, opts ...HandleOption) *Map {
	ns := resolveNamespace(b.client.options.MapNamespace, opts)
	if ns == common.LegacyNamespace {
		ns = b.client.options.MapNamespace
	}
	return newRootMap(b, key, ns)
}
