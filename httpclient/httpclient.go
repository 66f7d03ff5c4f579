// Package httpclient builds the HTTP clients used to talk to other servers:
// pooled transports instrumented with OTel, a retry policy, and clients that
// sign every request they send.
//
// The transport defaults follow github.com/hashicorp/go-cleanhttp.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
)

const ConnectTimeout = 5 * time.Second

// DefaultPooledRoundTripper returns an instrumented http.RoundTripper with
// similar defaults to http.DefaultTransport. Only use it for transports that
// are reused, as idle connections are kept open.
func DefaultPooledRoundTripper() http.RoundTripper {
	return otelhttp.NewTransport(pooledTransport())
}

// EgressRoundTripper returns a pooled http.RoundTripper for calling servers
// run by other parties, e.g. when delivering to a remote inbox. Requests go
// through proxy, and no trace context is propagated.
func EgressRoundTripper(proxy func(*http.Request) (*url.URL, error)) http.RoundTripper {
	transport := pooledTransport()
	transport.Proxy = proxy

	return otelhttp.NewTransport(transport, otelhttp.WithPropagators(propagation.NewCompositeTextMapPropagator()))
}

func pooledTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   runtime.GOMAXPROCS(0) + 1,
	}
}
