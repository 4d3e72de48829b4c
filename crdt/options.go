package crdt

import (
	"go.uber.org/zap"

	"riakdt/common"
)

// Options configures a Client.
type Options struct {
	// TypesPrefix is the root of bucket-type resources.
	TypesPrefix string

	// BucketsPrefix is the root of legacy bucket resources.
	BucketsPrefix string

	// Default bucket types of the standalone data types.
	CounterNamespace string
	SetNamespace     string
	MapNamespace     string

	// ReturnBody asks the store to answer map writes with the new value,
	// which then replaces the map's cached value.
	ReturnBody bool

	// Logger receives debug logs for saves and fetches.
	Logger *zap.Logger
}

// DefaultOptions returns the store's standard resource layout.
func DefaultOptions() *Options {
	return &Options{
		TypesPrefix:      "/types",
		BucketsPrefix:    "/buckets",
		CounterNamespace: common.DefaultCounterNamespace,
		SetNamespace:     common.DefaultSetNamespace,
		MapNamespace:     common.DefaultMapNamespace,
	}
}

// Option changes a client option.
type Option func(*Options)

// WithReturnBody makes map saves request and cache the resulting value.
func WithReturnBody(enabled bool) Option {
	return func(o *Options) {
		o.ReturnBody = enabled
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTypesPrefix sets the root of bucket-type resources.
func WithTypesPrefix(prefix string) Option {
	return func(o *Options) {
		o.TypesPrefix = prefix
	}
}

// WithBucketsPrefix sets the root of legacy bucket resources.
func WithBucketsPrefix(prefix string) Option {
	return func(o *Options) {
		o.BucketsPrefix = prefix
	}
}

// WithNamespaces sets the default bucket types. Empty arguments keep the
// current value.
func WithNamespaces(counters, sets, maps string) Option {
	return func(o *Options) {
		if counters != "" {
			o.CounterNamespace = counters
		}
		if sets != "" {
			o.SetNamespace = sets
		}
		if maps != "" {
			o.MapNamespace = maps
		}
	}
}

// HandleOption changes how a single data type handle is addressed.
type HandleOption func(*handleOptions)

type handleOptions struct {
	namespace    string
	hasNamespace bool
}

// InNamespace addresses the handle in bucket type ns. For counters the
// empty namespace selects the legacy counter resource.
func InNamespace(ns string) HandleOption {
	return func(o *handleOptions) {
		o.namespace = ns
		o.hasNamespace = true
	}
}

func resolveNamespace(def string, opts []HandleOption) string {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasNamespace {
		return o.namespace
	}
	return def
}
