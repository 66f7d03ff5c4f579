package signing

import (
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedsig/go/http/digest"
)

const vectorSignature = "Y5if+V4t0kaMK/BnthSxpVrj6I4ky49az+vAKTF91uSTfZz/5HQjrQsvRb6CJBIvOe4Fti3hlSBtj3yY+ZyDin2qSiFjarRRXoGt8aV4LjGokieJVC3PpJPGObodCa48twmIctdzhIhfeTbk2rsqBVk8hJI2bS0VvRzXb4On5R/3PHT2vFOTXuV2J9L37lqbdcxiH4XG8q0GL/AIyy51cw7BOEsfT6lyMwoP4W89ckezdq7p0pFgtsiAJ6TsOPHXPhrf0n32jkviyE2iAizDFMrcflQYCVaqOCZMV0TAf/jF7jNyh4lpdvRf0113+blUjjrctOSiYcOfNfdBaxQsIQ=="

var vectorHeaders = []string{"(request-target)", "host", "date", "content-type", "digest", "content-length"}

func TestSignerVector(t *testing.T) {
	priv, pub := vectorKeys(t)

	signer, err := NewSigner("Test", priv, WithHeaders(vectorHeaders...), fixedClock(vectorNow))
	require.NoError(t, err)

	req := vectorRequest(t)
	sig, err := signer.Sign(WrapRequest(req))
	require.NoError(t, err)

	assert.Equal(t, "Authorization", sig.Header)
	assert.Equal(t, vectorSignature, sig.Params.Signature)
	assert.Equal(t, vectorAuthorization, req.Header.Get("Authorization"))

	parsed, err := ParseRequest(WrapRequest(req), fixedClock(vectorNow))
	require.NoError(t, err)
	assert.Equal(t, sig.SigningString, parsed.SigningString())

	ok, err := VerifySignature(parsed, pub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoundTrip(t *testing.T) {
	keys := testKeys(t)
	headers := []string{"(request-target)", "host", "date", "digest", "content-length"}

	for _, k := range []KeyAlgorithm{KeyRSA, KeyDSA, KeyECDSA, KeyEd25519} {
		for _, h := range []HashAlgorithm{HashSHA1, HashSHA256, HashSHA512} {
			pair := AlgorithmPair{Key: k, Hash: h}
			t.Run(pair.String(), func(t *testing.T) {
				own, other := keys[k][0], keys[k][1]

				req := bodyRequest(t, `{"type":"Follow"}`)
				signer, err := NewSigner("https://example.com/actor#main-key", own.private,
					WithAlgorithm(pair.String()),
					WithHeaders(headers...),
				)
				require.NoError(t, err)
				_, err = signer.Sign(WrapRequest(req))
				require.NoError(t, err)

				parsed, err := ParseRequest(WrapRequest(req))
				require.NoError(t, err)
				assert.Equal(t, pair.String(), parsed.Params().Algorithm)

				ok, err := VerifySignature(parsed, own.public)
				require.NoError(t, err)
				assert.True(t, ok, "matching key")

				ok, err = VerifySignature(parsed, other.public)
				require.NoError(t, err)
				assert.False(t, ok, "different key of the same type")

				req.Header.Set("Digest", "SHA-256=47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=")
				tampered, err := ParseRequest(WrapRequest(req))
				require.NoError(t, err)
				ok, err = VerifySignature(tampered, own.public)
				require.NoError(t, err)
				assert.False(t, ok, "tampered digest")
			})
		}
	}
}

func TestRoundTripHMAC(t *testing.T) {
	secret := []byte("correct horse battery staple")

	for _, h := range []HashAlgorithm{HashSHA1, HashSHA256, HashSHA512} {
		alg := "hmac-" + h.String()
		t.Run(alg, func(t *testing.T) {
			req := bodyRequest(t, "hello")
			require.NoError(t, SignRequest(req, "shared", secret, WithAlgorithm(alg), WithHeaders("(request-target)", "date", "digest")))

			parsed, err := ParseRequest(WrapRequest(req))
			require.NoError(t, err)

			ok, err := VerifyHMAC(parsed, secret)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = VerifyHMAC(parsed, []byte("wrong"))
			require.NoError(t, err)
			assert.False(t, ok)

			// HMAC signatures are never accepted as public key signatures.
			ok, err = VerifySignature(parsed, secret)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTamperedHeaders(t *testing.T) {
	keys := testKeys(t)
	own := keys[KeyEd25519][0]

	testcases := []struct {
		Name   string
		Tamper func(r *http.Request)
	}{
		{Name: "date", Tamper: func(r *http.Request) { r.Header.Set("Date", time.Now().Add(time.Second).UTC().Format(http.TimeFormat)) }},
		{Name: "host", Tamper: func(r *http.Request) { r.Host = "evil.example" }},
		{Name: "target", Tamper: func(r *http.Request) { r.RequestURI = "/outbox" }},
		{Name: "method", Tamper: func(r *http.Request) { r.Method = "PUT" }},
		{Name: "content-length", Tamper: func(r *http.Request) { r.Header.Set("Content-Length", "1") }},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			req := bodyRequest(t, "hello")
			require.NoError(t, SignRequest(req, "k", own.private,
				WithHeaders("(request-target)", "host", "date", "digest", "content-length"),
			))

			tc.Tamper(req)

			parsed, err := ParseRequest(WrapRequest(req))
			require.NoError(t, err)
			ok, err := VerifySignature(parsed, own.public)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHS2019(t *testing.T) {
	keys := testKeys(t)

	t.Run("ed25519 resolves to sha512", func(t *testing.T) {
		own := keys[KeyEd25519][0]
		req := bodyRequest(t, "hello")
		sig, err := mustSigner(t, "k", own.private, WithAlgorithm("hs2019")).Sign(WrapRequest(req))
		require.NoError(t, err)
		assert.Equal(t, "hs2019", sig.Params.Algorithm)

		parsed, err := ParseRequest(WrapRequest(req))
		require.NoError(t, err)
		ok, err := VerifySignature(parsed, own.public)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rsa resolves to sha256", func(t *testing.T) {
		own := keys[KeyRSA][0]
		headers := []string{"(request-target)", "date"}

		for _, tc := range []struct {
			Hash  HashAlgorithm
			Valid bool
		}{
			{HashSHA256, true},
			{HashSHA512, false},
		} {
			req := bodyRequest(t, "hello")
			s, err := BuildSigningString(WrapRequest(req), Params{Headers: headers}, DialectLegacy)
			require.NoError(t, err)

			raw, err := StandardProvider{}.Sign(tc.Hash, []byte(s), own.private)
			require.NoError(t, err)
			req.Header.Set("Signature", fmt.Sprintf(`keyId="k",algorithm="hs2019",headers="%s",signature="%s"`,
				strings.Join(headers, " "), base64.StdEncoding.EncodeToString(raw)))

			parsed, err := ParseRequest(WrapRequest(req))
			require.NoError(t, err)
			ok, err := VerifySignature(parsed, own.public)
			require.NoError(t, err)
			assert.Equal(t, tc.Valid, ok, tc.Hash.String())
		}
	})

	t.Run("hs2019 is not an hmac algorithm", func(t *testing.T) {
		req := bodyRequest(t, "hello")
		req.Header.Set("Signature", `keyId="k",algorithm="hs2019",signature="c2ln"`)
		parsed, err := ParseRequest(WrapRequest(req))
		require.NoError(t, err)

		ok, err := VerifyHMAC(parsed, []byte("secret"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerifySignatureMismatch(t *testing.T) {
	keys := testKeys(t)
	rsaKey := keys[KeyRSA][0]

	req := bodyRequest(t, "hello")
	require.NoError(t, SignRequest(req, "k", rsaKey.private))
	parsed, err := ParseRequest(WrapRequest(req))
	require.NoError(t, err)

	for _, k := range []KeyAlgorithm{KeyDSA, KeyECDSA, KeyEd25519} {
		ok, err := VerifySignature(parsed, keys[k][0].public)
		require.NoError(t, err, k.String())
		assert.False(t, ok, k.String())
	}

	ok, err := VerifySignature(parsed, "not a key")
	require.NoError(t, err)
	assert.False(t, ok)

	req.Header.Set("Authorization", strings.Replace(req.Header.Get("Authorization"), `signature="`, `signature="!!`, 1))
	parsed, err = ParseRequest(WrapRequest(req))
	require.NoError(t, err)
	ok, err = VerifySignature(parsed, rsaKey.public)
	require.NoError(t, err)
	assert.False(t, ok, "undecodable base64")
}

func TestSignerDefaults(t *testing.T) {
	keys := testKeys(t)
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	testcases := []struct {
		Name      string
		Key       crypto.PrivateKey
		Algorithm string
	}{
		{Name: "rsa", Key: keys[KeyRSA][0].private, Algorithm: "rsa-sha256"},
		{Name: "dsa", Key: keys[KeyDSA][0].private, Algorithm: "dsa-sha256"},
		{Name: "ecdsa", Key: keys[KeyECDSA][0].private, Algorithm: "ecdsa-sha256"},
		{Name: "ed25519", Key: keys[KeyEd25519][0].private, Algorithm: "ed25519-sha512"},
		{Name: "hmac", Key: []byte("secret"), Algorithm: "hmac-sha256"},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/actor", nil)
			sig, err := mustSigner(t, "k", tc.Key, fixedClock(now)).Sign(WrapRequest(req))
			require.NoError(t, err)

			assert.Equal(t, tc.Algorithm, sig.Params.Algorithm)
			assert.Equal(t, []string{"date"}, sig.Params.Headers)
			assert.Equal(t, "Fri, 01 Mar 2024 12:00:00 GMT", req.Header.Get("Date"))
			assert.Equal(t, "date: Fri, 01 Mar 2024 12:00:00 GMT", sig.SigningString)
			assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"),
				`Signature keyId="k",algorithm="`+tc.Algorithm+`",headers="date",signature="`))
		})
	}
}

func TestSignerParameters(t *testing.T) {
	keys := testKeys(t)
	own := keys[KeyEd25519][0]
	now := time.Unix(1700000000, 0)

	req := httptest.NewRequest("GET", "/actor", nil)
	sig, err := mustSigner(t, "k", own.private,
		fixedClock(now),
		WithHeaders("(request-target)", "(created)", "(expires)", "(keyid)", "(algorithm)", "(opaque)"),
		WithExpiry(time.Minute),
		WithOpaque("true"),
		WithAuthorizationHeader("Signature"),
	).Sign(WrapRequest(req))
	require.NoError(t, err)

	assert.Equal(t, "Signature", sig.Header)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Date"), "date is only set when signed")

	value := req.Header.Get("Signature")
	assert.True(t, strings.HasPrefix(value,
		`keyId="k",algorithm="ed25519-sha512",created=1700000000,expires=1700000060,`+
			`headers="(request-target) (created) (expires) (keyid) (algorithm) (opaque)",opaque="true",signature="`), value)

	assert.Equal(t, "(request-target): get /actor\n"+
		"(created): 1700000000\n"+
		"(expires): 1700000060\n"+
		"(keyid): k\n"+
		"(algorithm): ed25519-sha512\n"+
		"(opaque): true", sig.SigningString)

	parsed, err := ParseRequest(WrapRequest(req), fixedClock(now), Strict())
	require.NoError(t, err)
	assert.Equal(t, "true", parsed.Opaque())
	ok, err := VerifySignature(parsed, own.public)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ParseRequest(WrapRequest(req), fixedClock(now.Add(time.Minute+301*time.Second)))
	require.ErrorIs(t, err, ErrExpiredRequest)
}

func TestSignerEmptyOpaque(t *testing.T) {
	own := testKeys(t)[KeyEd25519][0]

	req := httptest.NewRequest("GET", "/actor", nil)
	sig, err := mustSigner(t, "k", own.private, WithHeaders("(opaque)"), WithOpaque("")).Sign(WrapRequest(req))
	require.NoError(t, err)
	assert.Equal(t, "(opaque): ", sig.SigningString)
	assert.Contains(t, sig.Value, `opaque="",`)

	parsed, err := ParseRequest(WrapRequest(req))
	require.NoError(t, err)
	ok, err := VerifySignature(parsed, own.public)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignerCreatedByDefaultInStrictMode(t *testing.T) {
	own := testKeys(t)[KeyECDSA][0]
	now := time.Unix(1700000000, 0)

	req := httptest.NewRequest("GET", "/actor", nil)
	sig, err := mustSigner(t, "k", own.private, fixedClock(now), Strict(), WithCreated()).Sign(WrapRequest(req))
	require.NoError(t, err)
	assert.Equal(t, []string{"(created)"}, sig.Params.Headers)

	parsed, err := ParseRequest(WrapRequest(req), fixedClock(now), Strict())
	require.NoError(t, err)
	ok, err := VerifySignature(parsed, own.public)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignerRandomOpaque(t *testing.T) {
	s := mustSigner(t, "k", testKeys(t)[KeyEd25519][0].private, WithRandomOpaque())

	first, err := s.Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.NoError(t, err)
	second, err := s.Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.NoError(t, err)

	require.NotNil(t, first.Params.Opaque)
	require.NotNil(t, second.Params.Opaque)
	assert.Len(t, *first.Params.Opaque, 27)
	assert.NotEqual(t, *first.Params.Opaque, *second.Params.Opaque)
}

func TestSignerCryptoSigner(t *testing.T) {
	keys := testKeys(t)

	for _, k := range []KeyAlgorithm{KeyRSA, KeyECDSA, KeyEd25519} {
		t.Run(k.String(), func(t *testing.T) {
			pair := keys[k][0]
			key := opaqueSigner{pair.private.(crypto.Signer)}
			assert.Equal(t, k, KeyTypeOf(key))

			req := bodyRequest(t, "hello")
			require.NoError(t, SignRequest(req, "kms", key, WithHeaders("(request-target)", "date", "digest")))

			parsed, err := ParseRequest(WrapRequest(req))
			require.NoError(t, err)
			ok, err := VerifySignature(parsed, pair.public)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestNewSignerErrors(t *testing.T) {
	keys := testKeys(t)
	rsaKey := keys[KeyRSA][0].private

	testcases := []struct {
		Name string
		ID   string
		Key  crypto.PrivateKey
		Opts []Option
		Err  error
	}{
		{Name: "empty keyId", ID: "", Key: rsaKey, Err: ErrInvalidParams},
		{Name: "quote in keyId", ID: `a"b`, Key: rsaKey, Err: ErrInvalidParams},
		{Name: "unknown key type", ID: "k", Key: "secret", Err: ErrSigningFailure},
		{Name: "algorithm for another key type", ID: "k", Key: rsaKey, Opts: []Option{WithAlgorithm("ecdsa-sha256")}, Err: ErrInvalidParams},
		{Name: "hs2019 with hmac", ID: "k", Key: []byte("secret"), Opts: []Option{WithAlgorithm("hs2019")}, Err: ErrInvalidParams},
		{Name: "invalid algorithm", ID: "k", Key: rsaKey, Opts: []Option{WithAlgorithm("rsa-md5")}, Err: ErrInvalidOption},
		{Name: "expires without expiry", ID: "k", Key: rsaKey, Opts: []Option{WithHeaders("(expires)")}, Err: ErrInvalidOption},
		{Name: "empty header list", ID: "k", Key: rsaKey, Opts: []Option{WithHeaders()}, Err: ErrInvalidOption},
		{Name: "header with space", ID: "k", Key: rsaKey, Opts: []Option{WithHeaders("a b")}, Err: ErrInvalidOption},
		{Name: "empty authorization header", ID: "k", Key: rsaKey, Opts: []Option{WithAuthorizationHeader("")}, Err: ErrInvalidOption},
		{Name: "nil provider", ID: "k", Key: rsaKey, Opts: []Option{WithProvider(nil)}, Err: ErrInvalidOption},
		{Name: "nil clock", ID: "k", Key: rsaKey, Opts: []Option{WithClock(nil)}, Err: ErrInvalidOption},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := NewSigner(tc.ID, tc.Key, tc.Opts...)
			require.ErrorIs(t, err, tc.Err)
		})
	}
}

func TestSignErrors(t *testing.T) {
	key := testKeys(t)[KeyEd25519][0].private

	_, err := mustSigner(t, "k", key, WithOpaque(`"`)).Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = mustSigner(t, "k", key, WithHeaders("digest")).Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.ErrorIs(t, err, ErrMissingHeader)

	_, err = mustSigner(t, "k", key, WithHeaders("request-line"), Strict()).Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.ErrorIs(t, err, ErrStrictParsing)

	_, err = mustSigner(t, "k", key, WithProvider(failingProvider{})).Sign(WrapRequest(httptest.NewRequest("GET", "/", nil)))
	require.ErrorIs(t, err, ErrSigningFailure)
}

type failingProvider struct{}

func (failingProvider) Sign(HashAlgorithm, []byte, crypto.PrivateKey) ([]byte, error) {
	return nil, errors.New("hsm unavailable")
}

func (failingProvider) Verify(HashAlgorithm, []byte, []byte, crypto.PublicKey) (bool, error) {
	return false, errors.New("hsm unavailable")
}

func TestVerifyProviderError(t *testing.T) {
	own := testKeys(t)[KeyEd25519][0]
	req := bodyRequest(t, "hello")
	require.NoError(t, SignRequest(req, "k", own.private))

	parsed, err := ParseRequest(WrapRequest(req))
	require.NoError(t, err)

	_, err = VerifySignature(parsed, own.public, WithProvider(failingProvider{}))
	require.Error(t, err)
}

func TestKeyTypeOf(t *testing.T) {
	keys := testKeys(t)
	for k, pairs := range keys {
		assert.Equal(t, k, KeyTypeOf(pairs[0].private), k.String())
		assert.Equal(t, k, KeyTypeOf(pairs[0].public), k.String())
	}

	edPriv := keys[KeyEd25519][0].private.(ed25519.PrivateKey)
	assert.Equal(t, KeyEd25519, KeyTypeOf(&edPriv))
	assert.Equal(t, KeyHMAC, KeyTypeOf([]byte("secret")))
	assert.Equal(t, KeyUnknown, KeyTypeOf("secret"))
	assert.Equal(t, KeyUnknown, KeyTypeOf(nil))
}

func TestStandardProviderRejectsShortEd25519Key(t *testing.T) {
	ok, err := StandardProvider{}.Verify(HashSHA512, []byte("msg"), []byte("sig"), ed25519.PublicKey("short"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func mustSigner(t *testing.T, keyID string, key crypto.PrivateKey, opts ...Option) Signer {
	t.Helper()
	s, err := NewSigner(keyID, key, opts...)
	require.NoError(t, err)
	return s
}

// bodyRequest returns an inbound request dated now, with a body and a matching
// Digest header.
func bodyRequest(t *testing.T, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest("POST", "/users/alice/inbox", strings.NewReader(body))
	d, err := digest.Compute(digest.SHA256, []byte(body))
	require.NoError(t, err)
	req.Header.Set("Digest", d)
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Content-Length", fmt.Sprint(len(body)))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return req
}
