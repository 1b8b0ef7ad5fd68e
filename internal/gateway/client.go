package gateway

import (
	"net/http"
	"sync"
	"time"
)

var (
	sharedOnce   sync.Once
	sharedClient *http.Client
)

// SharedHTTPClient returns the process-wide pooled HTTP client used for
// gateway calls.
//
// Connection reuse matters here: every dispatch is a short POST to the same
// host, and keep-alive avoids a TCP and TLS handshake per message. The
// client carries no overall timeout; each request gets its own deadline
// from the caller's context.
func SharedHTTPClient() *http.Client {
	sharedOnce.Do(func() {
		sharedClient = NewHTTPClient(0)
	})
	return sharedClient
}

// NewHTTPClient creates an HTTP client with connection pooling.
//
// Pool configuration:
//   - MaxIdleConns: 100 across all hosts
//   - MaxIdleConnsPerHost: 10
//   - IdleConnTimeout: 90 seconds
//
// Parameters:
//   - timeout: Maximum time for a complete request, 0 for none
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
