package digest_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsig/go/http/digest"
)

func serverExpectingDigest(t *testing.T, expected string, length int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, expected, r.Header.Get("Digest"))
		assert.NoError(t, digest.Verify(r))
		if length > 0 {
			assert.EqualValues(t, length, r.ContentLength)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
}

func largeBody() []byte {
	return bytes.Repeat([]byte("abcdefgh"), 16*1024)
}

func TestTransport(t *testing.T) {
	testcases := []struct {
		Name      string
		Algorithm digest.Algorithm
		Body      []byte
		Digest    string
	}{
		{
			Name:      "nil body",
			Algorithm: digest.SHA256,
			Body:      nil,
			Digest:    "SHA-256=47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=",
		},
		{
			Name:      "json body",
			Algorithm: digest.SHA256,
			Body:      []byte(`{"hello": "world"}`),
			Digest:    "SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE=",
		},
		{
			Name:      "hello world sha-512",
			Algorithm: digest.SHA512,
			Body:      []byte("hello world"),
			Digest:    "SHA-512=MJ7MSJwS1utMxA9QyQLytNDtd+5RGnx6m808qG1M2G+YndNbxf9JlnDaNCVbRbDP2DDoH2Bdz33FVC6TrpzXbw==",
		},
		{
			Name:      "large body (128KB)",
			Algorithm: digest.SHA256,
			Body:      largeBody(),
			Digest:    "SHA-256=uJFG/lUiLOb317yb4aN7O47Wutjv2cxBeCZN6vKmIek=",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			transport, err := digest.NewTransport(http.DefaultTransport, tc.Algorithm)
			require.NoError(t, err)
			client := &http.Client{Transport: transport}

			server := serverExpectingDigest(t, tc.Digest, len(tc.Body))
			defer server.Close()

			var body io.Reader
			if tc.Body != nil {
				body = bytes.NewReader(tc.Body)
			}
			req, err := http.NewRequest("POST", server.URL, body)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Empty(t, req.Header.Get("Digest"), "original request must not be modified")
		})
	}
}

func TestNewTransportRejectsUnknownAlgorithm(t *testing.T) {
	_, err := digest.NewTransport(nil, digest.Algorithm("MD5"))
	require.ErrorIs(t, err, digest.ErrUnsupported)
}

func TestCompute(t *testing.T) {
	d, err := digest.Compute(digest.SHA256, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "SHA-256=uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=", d)

	_, err = digest.Compute(digest.Algorithm("SHA-1"), nil)
	require.ErrorIs(t, err, digest.ErrUnsupported)
}

func TestVerify(t *testing.T) {
	testcases := []struct {
		Name   string
		Header string
		Body   string
		Err    error
	}{
		{
			Name:   "matching",
			Header: "SHA-256=uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=",
			Body:   "hello world",
		},
		{
			Name:   "lower case algorithm",
			Header: "sha-256=uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=",
			Body:   "hello world",
		},
		{
			Name:   "unsupported algorithm ignored",
			Header: "MD5=XrY7u+Ae7tCTyyK7j1rNww==,SHA-256=uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=",
			Body:   "hello world",
		},
		{
			Name: "missing",
			Body: "hello world",
			Err:  digest.ErrMissing,
		},
		{
			Name:   "only unsupported",
			Header: "MD5=XrY7u+Ae7tCTyyK7j1rNww==",
			Body:   "hello world",
			Err:    digest.ErrUnsupported,
		},
		{
			Name:   "tampered body",
			Header: "SHA-256=uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=",
			Body:   "hello world!",
			Err:    digest.ErrMismatch,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/inbox", strings.NewReader(tc.Body))
			if tc.Header != "" {
				req.Header.Set("Digest", tc.Header)
			}

			err := digest.Verify(req)
			if tc.Err != nil {
				require.ErrorIs(t, err, tc.Err)
				return
			}
			require.NoError(t, err)

			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.Body, string(body), "body must be readable after verification")
		})
	}
}

type nopTransport struct{}

func (tr *nopTransport) RoundTrip(_ *http.Request) (*http.Response, error) {
	return &http.Response{}, nil
}

func BenchmarkTransport(b *testing.B) {
	payload := largeBody()

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))

	transport, err := digest.NewTransport(&nopTransport{}, digest.SHA256)
	require.NoError(b, err)

	requests := make([]*http.Request, b.N)
	for i := 0; i < b.N; i++ {
		req, err := http.NewRequest("POST", "http://example.com", bytes.NewReader(payload))
		require.NoError(b, err)
		requests[i] = req
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = transport.RoundTrip(requests[i])
	}
}
