package signing

import "net/http"

// Transport is an implementation of http.RoundTripper that signs every request
// before passing it on.
type Transport struct {
	http.RoundTripper
	Signer
}

func NewTransport(t http.RoundTripper, s Signer) *Transport {
	if t == nil {
		t = http.DefaultTransport
	}
	return &Transport{
		RoundTripper: t,
		Signer:       s,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the original request.
	req = req.Clone(req.Context())

	if _, err := t.Sign(WrapRequest(req)); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	return t.RoundTripper.RoundTrip(req)
}
