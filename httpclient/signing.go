package httpclient

import (
	"net/http"
	"net/url"

	"github.com/fedsig/go/http/digest"
	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/must"
	"github.com/fedsig/go/version"
)

// NewSigningClient returns a pooled client which signs every outgoing request
// with s. Requests with a body also get a Digest header, computed before
// signing so that "digest" can be listed in the signed headers.
//
// Requests are retried following ApplyRetryPolicy. Each attempt passes through
// the signing transport again, so retried requests carry a fresh Date and
// signature.
func NewSigningClient(s signing.Signer) *http.Client {
	return signingClient(DefaultPooledRoundTripper(), s)
}

// NewEgressSigningClient is NewSigningClient for requests to servers run by
// other parties. See EgressRoundTripper.
func NewEgressSigningClient(s signing.Signer, proxy func(*http.Request) (*url.URL, error)) *http.Client {
	return signingClient(EgressRoundTripper(proxy), s)
}

func signingClient(rt http.RoundTripper, s signing.Signer) *http.Client {
	rt = signing.NewTransport(rt, s)
	rt = must.Get(digest.NewTransport(rt, digest.SHA256))
	rt = &userAgentTransport{RoundTripper: rt}

	return ApplyRetryPolicy(&http.Client{Transport: rt})
}

type userAgentTransport struct {
	http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return t.RoundTripper.RoundTrip(req)
}
