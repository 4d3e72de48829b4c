package crdt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"riakdt/backend"
	"riakdt/internal/fakestore"
)

// newTestClient returns a client talking to a fresh in-process store.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakestore.Server) {
	t.Helper()

	store := fakestore.New()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	hc, err := backend.NewHTTPClient([]string{srv.URL}, &backend.Options{MaxRetries: -1})
	require.NoError(t, err)
	return NewClient(hc, opts...), store
}

// recorder is a backend that records queries and answers with canned
// responses.
type recorder struct {
	mu      sync.Mutex
	queries []*backend.Query
	reply   func(q *backend.Query) (*backend.Response, error)
}

func (r *recorder) Query(ctx context.Context, q *backend.Query) (*backend.Response, error) {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	if r.reply == nil {
		return &backend.Response{StatusCode: http.StatusNoContent}, nil
	}
	return r.reply(q)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

func (r *recorder) last() *backend.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		return nil
	}
	return r.queries[len(r.queries)-1]
}

func jsonReply(status int, body string) func(*backend.Query) (*backend.Response, error) {
	return func(*backend.Query) (*backend.Response, error) {
		return &backend.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

func lastWrite(t *testing.T, store *fakestore.Server) fakestore.Request {
	t.Helper()
	writes := store.Writes()
	require.NotEmpty(t, writes)
	return writes[len(writes)-1]
}
