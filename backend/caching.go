package backend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"riakdt/cache"
	"riakdt/common"
	"riakdt/core"
)

// CachedResponse is the cache representation of a Response.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}

func (r *CachedResponse) response() *Response {
	return &Response{StatusCode: r.StatusCode, Header: r.Header.Clone(), Body: append([]byte(nil), r.Body...)}
}

// CachingClient serves repeated reads of a data type from a cache.
//
// Successful 200 GET responses are cached by path and concurrent reads of
// the same path share one request. A successful write to a path drops its
// cached read.
type CachingClient struct {
	next   Client
	cache  cache.Cache[*CachedResponse]
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachingClient wraps next. A zero ttl uses the cache's default TTL.
func NewCachingClient(next Client, c cache.Cache[*CachedResponse], ttl time.Duration) *CachingClient {
	return &CachingClient{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: core.Named("backend.cache"),
	}
}

// Query implements Client.
func (c *CachingClient) Query(ctx context.Context, q *Query) (*Response, error) {
	if q.Method != http.MethodGet {
		resp, err := c.next.Query(ctx, q)
		if err == nil {
			c.invalidate(ctx, q.Path)
		}
		return resp, err
	}

	if cached, err := c.cache.Get(ctx, q.Path); err == nil {
		c.logger.Debug("cache hit", zap.String("path", q.Path))
		return cached.response(), nil
	}

	// The shared read must outlive any one caller; each caller still stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(q.Path, func() (interface{}, error) {
		resp, err := c.next.Query(shared, q)
		if err != nil {
			return nil, err
		}
		entry := &CachedResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
		if resp.StatusCode == http.StatusOK {
			if err := c.cache.Set(shared, q.Path, entry, c.ttl); err != nil {
				c.logger.Warn("cache set failed", zap.String("path", q.Path), zap.Error(err))
			}
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CachedResponse).response(), nil
	}
}

// Invalidate drops the cached read of path.
func (c *CachingClient) Invalidate(ctx context.Context, path string) {
	c.invalidate(ctx, path)
}

func (c *CachingClient) invalidate(ctx context.Context, path string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if err := c.cache.Delete(ctx, path); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("path", path), zap.Error(err))
	}
}
