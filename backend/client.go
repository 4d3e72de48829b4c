// Package backend carries requests from the data type proxies to the store.
//
// The proxies in package crdt only see the Client interface. HTTPClient is
// the production implementation talking to one or more store nodes, and
// CachingClient decorates any Client with a read cache.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// Content types used by the data type API.
const (
	ContentTypeJSON  = "application/json"
	ContentTypePlain = "text/plain"
)

// Client sends one request to the store.
//
// Implementations return a *common.TransportError for network failures and
// non-2xx statuses. A nil error means the store accepted the request.
type Client interface {
	Query(ctx context.Context, q *Query) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, q *Query) (*Response, error)

// Query implements Client.
func (f ClientFunc) Query(ctx context.Context, q *Query) (*Response, error) {
	return f(ctx, q)
}

// Query describes one request: verb, path relative to the server root,
// headers and an optional body.
type Query struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// NewQuery creates a query with an empty header set.
func NewQuery(method, path string) *Query {
	return &Query{Method: method, Path: path, Header: make(http.Header)}
}

// WithJSON encodes v as the body and sets the JSON content type.
func (q *Query) WithJSON(v any) (*Query, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode request body")
	}
	q.Body = body
	q.setHeader("Content-Type", ContentTypeJSON)
	return q, nil
}

// WithText sets a plain text body.
func (q *Query) WithText(s string) *Query {
	q.Body = []byte(s)
	q.setHeader("Content-Type", ContentTypePlain)
	return q
}

func (q *Query) setHeader(key, value string) {
	if q.Header == nil {
		q.Header = make(http.Header)
	}
	q.Header.Set(key, value)
}

// Response is a store reply with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals a JSON body into v. Numbers decode as json.Number so
// counter values keep full int64 precision.
func (r *Response) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

// Data returns the decoded body as generic JSON, or the raw text when the
// body is not JSON.
func (r *Response) Data() any {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	var v any
	if err := r.Decode(&v); err != nil {
		return string(r.Body)
	}
	return v
}
