package backend

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riakdt/cache"
	"riakdt/common"
)

func newCachingClient(next Client) (*CachingClient, *cache.MemoryCache[*CachedResponse]) {
	store := cache.NewMemoryCache[*CachedResponse](nil)
	return NewCachingClient(next, store, time.Minute), store
}

func TestCachingClientCachesReads(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, q *Query) (*Response, error) {
		calls.Add(1)
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{"value":1}`)}, nil
	})
	client, store := newCachingClient(next)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := client.Query(ctx, NewQuery(http.MethodGet, "/types/counters/buckets/b/datatypes/k"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"value":1}`, string(resp.Body))
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachingClientInvalidatesOnWrite(t *testing.T) {
	var reads atomic.Int32
	next := ClientFunc(func(ctx context.Context, q *Query) (*Response, error) {
		if q.Method == http.MethodGet {
			reads.Add(1)
			return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
		}
		return &Response{StatusCode: http.StatusNoContent}, nil
	})
	client, store := newCachingClient(next)
	defer store.Close()
	ctx := context.Background()
	path := "/types/maps/buckets/b/datatypes/k"

	_, err := client.Query(ctx, NewQuery(http.MethodGet, path))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = client.Query(ctx, NewQuery(http.MethodPost, path+"?returnbody=true"))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	_, err = client.Query(ctx, NewQuery(http.MethodGet, path))
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}

func TestCachingClientDoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, q *Query) (*Response, error) {
		calls.Add(1)
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, StatusCode: http.StatusNotFound}
	})
	client, store := newCachingClient(next)
	defer store.Close()

	for i := 0; i < 2; i++ {
		_, err := client.Query(context.Background(), NewQuery(http.MethodGet, "/k"))
		assert.True(t, common.IsNotFound(err))
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachingClientCoalescesReads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := ClientFunc(func(ctx context.Context, q *Query) (*Response, error) {
		calls.Add(1)
		<-release
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})
	client, store := newCachingClient(next)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Query(context.Background(), NewQuery(http.MethodGet, "/k"))
			assert.NoError(t, err)
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachingClientCallerCancelDoesNotFailSharedRead(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := ClientFunc(func(ctx context.Context, q *Query) (*Response, error) {
		calls.Add(1)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})
	client, store := newCachingClient(next)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := client.Query(ctx, NewQuery(http.MethodGet, "/k"))
		first <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := client.Query(context.Background(), NewQuery(http.MethodGet, "/k"))
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, common.IsTransport(err))

	close(release)
	assert.NoError(t, <-second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResponseData(t *testing.T) {
	assert.Nil(t, (&Response{}).Data())
	assert.Equal(t, "42", (&Response{Body: []byte("42")}).Data().(interface{ String() string }).String())
	assert.Equal(t, "not json", (&Response{Body: []byte("not json")}).Data())
	assert.Equal(t, map[string]any{"a": "b"}, (&Response{Body: []byte(`{"a":"b"}`)}).Data())
}
