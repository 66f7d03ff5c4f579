package digest

import (
	"bytes"
	"hash"
	"io"
	"net/http"
	"sync"
)

// Transport is an implementation of http.RoundTripper that automatically adds
// a Digest header to outgoing requests. Place it in front of a signing
// transport so that the digest can be signed.
//
// Note: This transport will necessarily buffer the request body in memory in
// order to calculate the digest.
type Transport struct {
	http.RoundTripper
	alg Algorithm

	bufPool  sync.Pool
	hashPool sync.Pool
}

// NewTransport returns a Transport using alg, which must be SHA256 or SHA512.
func NewTransport(t http.RoundTripper, alg Algorithm) (*Transport, error) {
	if _, err := alg.new(); err != nil {
		return nil, err
	}
	if t == nil {
		t = http.DefaultTransport
	}
	return &Transport{
		RoundTripper: t,
		alg:          alg,

		bufPool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
		hashPool: sync.Pool{
			New: func() any {
				h, _ := alg.new()
				return h
			},
		},
	}, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	h := t.hashPool.Get().(hash.Hash)
	h.Reset()
	defer t.hashPool.Put(h)

	// RoundTrip must not modify the original request.
	req = req.Clone(req.Context())

	if req.Body != nil && req.Body != http.NoBody {
		// RoundTrip must close the request body even in the event of an error.
		defer req.Body.Close()

		body := io.TeeReader(req.Body, h)

		buf := t.bufPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer t.bufPool.Put(buf)
		if _, err := io.Copy(buf, body); err != nil {
			return nil, err
		}

		req.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
		req.ContentLength = int64(buf.Len())
	}

	req.Header.Set(Header, format(t.alg, h.Sum(nil)))

	return t.RoundTripper.RoundTrip(req)
}
