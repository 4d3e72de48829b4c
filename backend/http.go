package backend

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"riakdt/common"
	"riakdt/core"
)

// ClientIDHeader identifies the client to the store.
const ClientIDHeader = "X-Riak-ClientId"

// HTTPClient is a pooled Client over one or more store nodes. Requests are
// spread round-robin and retried on another node after network errors and
// 5xx statuses.
type HTTPClient struct {
	servers  []string
	next     atomic.Uint64
	http     *http.Client
	options  *Options
	pending  *semaphore.Weighted
	clientID string
	logger   *zap.Logger
	metrics  *Metrics
}

// NewHTTPClient creates a client for servers, given as host:port or URLs.
func NewHTTPClient(servers []string, opts *Options) (*HTTPClient, error) {
	options, err := mergeOptions(opts)
	if err != nil {
		return nil, err
	}

	var normalized []string
	for _, s := range servers {
		if s = strings.TrimSpace(s); s != "" {
			normalized = append(normalized, normalizeServer(s, options.Scheme))
		}
	}
	if len(normalized) == 0 {
		return nil, errors.New("backend: no servers configured")
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = pooledClient(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = core.Named("backend")
	}

	return &HTTPClient{
		servers:  normalized,
		http:     httpClient,
		options:  options,
		pending:  semaphore.NewWeighted(int64(options.MaxPending)),
		clientID: uuid.NewString(),
		logger:   logger,
		metrics:  NewMetrics(options.Registerer),
	}, nil
}

func pooledClient(options *Options) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        options.MaxSockets * 4,
		MaxIdleConnsPerHost: options.MaxSockets,
		IdleConnTimeout:     90 * time.Second,
	}
	// Attempts are bounded by a per-attempt context instead of Client.Timeout.
	return &http.Client{Transport: transport}
}

// Servers returns the normalized server URLs.
func (c *HTTPClient) Servers() []string {
	return append([]string(nil), c.servers...)
}

// ClientID returns the id sent in the X-Riak-ClientId header.
func (c *HTTPClient) ClientID() string {
	return c.clientID
}

// Metrics returns the client's collectors.
func (c *HTTPClient) Metrics() *Metrics {
	return c.metrics
}

// Ping checks that a server answers the health resource.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, NewQuery(http.MethodGet, c.options.PingPath))
	return err
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, q *Query) (*Response, error) {
	if err := c.pending.Acquire(ctx, 1); err != nil {
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, Cause: err}
	}
	defer c.pending.Release(1)

	c.metrics.PendingRequests.Inc()
	defer c.metrics.PendingRequests.Dec()

	started := time.Now()
	attempts := c.options.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.RetriesTotal.WithLabelValues(q.Method).Inc()
			if err := c.wait(ctx, attempt); err != nil {
				break
			}
		}

		server := c.pick()
		resp, err := c.do(ctx, server, q)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		var te *common.TransportError
		if errors.As(err, &te) {
			status = te.StatusCode
		}
		c.metrics.observe(q.Method, status, started)

		c.logger.Debug("query",
			zap.String("method", q.Method),
			zap.String("server", server),
			zap.String("path", q.Path),
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(q.Method, te) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// retryable reports whether a failed attempt may be repeated. Reads retry
// on any temporary failure. Writes only retry when the connection was never
// established, since the store may already have applied them.
func retryable(method string, te *common.TransportError) bool {
	if te == nil || !te.Temporary() {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	var opErr *net.OpError
	return errors.As(te.Cause, &opErr) && opErr.Op == "dial"
}

func (c *HTTPClient) pick() string {
	n := c.next.Add(1) - 1
	return c.servers[n%uint64(len(c.servers))]
}

func (c *HTTPClient) wait(ctx context.Context, attempt int) error {
	delay := c.options.RetryDelay << (attempt - 1)
	if delay <= 0 || delay > c.options.MaxRetryDelay {
		delay = c.options.MaxRetryDelay
	}
	if c.options.RetryJitter > 0 {
		delay += time.Duration(rand.Float64() * c.options.RetryJitter * float64(delay))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) do(ctx context.Context, server string, q *Query) (*Response, error) {
	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	var body io.Reader
	if q.Body != nil {
		body = bytes.NewReader(q.Body)
	}
	req, err := http.NewRequestWithContext(ctx, q.Method, server+q.Path, body)
	if err != nil {
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, Cause: err}
	}
	for key, values := range q.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set(ClientIDHeader, c.clientID)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, Cause: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &common.TransportError{Method: q.Method, Path: q.Path, StatusCode: res.StatusCode, Cause: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &common.TransportError{
			Method:     q.Method,
			Path:       q.Path,
			StatusCode: res.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}
