package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ApplyRetryPolicy returns a client that retries requests sent through c on
// connection errors, 429 and 503 responses (respecting Retry-After) and other
// 5XX responses except 501. A 401 means the peer rejected the signature and is
// returned immediately.
//
// Up to 4 retries are made, 100ms, 200ms, 400ms and 800ms apart with the
// default backoff.
func ApplyRetryPolicy(c *http.Client) *http.Client {
	retryClient := &retryablehttp.Client{
		HTTPClient: c,
		// requests are logged by the otelhttp transport
		Logger:       nil,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     4,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}
	return retryClient.StandardClient()
}
