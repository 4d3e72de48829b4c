package backend

import (
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options configures an HTTPClient.
//
// Options passed to NewHTTPClient are merged onto DefaultOptions: only the
// fields that are set override a default.
//
//	client, err := backend.NewHTTPClient(backend.ParseServers("10.0.0.1:8098, 10.0.0.2:8098"), &backend.Options{
//	    Timeout: 5 * time.Second,
//	})
type Options struct {
	// MaxPending bounds the number of requests in flight at once. Further
	// requests wait for a slot or for their context to end.
	MaxPending int

	// MaxSockets is the number of idle keep-alive connections kept per server.
	MaxSockets int

	// Timeout bounds one attempt, including reading the response body.
	Timeout time.Duration

	// PingPath is the health check resource used by Ping.
	PingPath string

	// MaxRetries is the number of additional attempts after a network error
	// or a 5xx status. Writes are only retried when the connection could not
	// be made. A negative value disables retries.
	MaxRetries int

	// RetryDelay is the first backoff delay. It doubles on each attempt up
	// to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// RetryJitter adds up to RetryJitter * delay of random wait.
	RetryJitter float64

	// Scheme is prepended to servers given without one.
	Scheme string

	// Logger receives debug logs for every request. Defaults to core's logger.
	Logger *zap.Logger

	// Registerer, when set, receives the client's prometheus metrics.
	Registerer prometheus.Registerer

	// HTTPClient replaces the pooled client built from the options above.
	HTTPClient *http.Client
}

// DefaultOptions returns the pool defaults:
// 1000 pending requests, 20 sockets, a 60 second timeout and five retries
// starting at 20ms.
func DefaultOptions() *Options {
	return &Options{
		MaxPending:    1000,
		MaxSockets:    20,
		Timeout:       60 * time.Second,
		PingPath:      "/ping",
		MaxRetries:    5,
		RetryDelay:    20 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
		RetryJitter:   0.1,
		Scheme:        "http",
	}
}

// mergeOptions copies the set fields of opts onto the defaults.
func mergeOptions(opts *Options) (*Options, error) {
	merged := DefaultOptions()
	if opts == nil {
		return merged, nil
	}
	if err := copier.CopyWithOption(merged, opts, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, errors.Wrap(err, "merge backend options")
	}
	return merged, nil
}

// ParseServers splits a comma separated server list, trimming blanks.
func ParseServers(servers string) []string {
	var out []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeServer(server, scheme string) string {
	server = strings.TrimRight(server, "/")
	if strings.Contains(server, "://") {
		return server
	}
	return scheme + "://" + server
}
