package signing

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedsig/go/test"
)

const (
	vectorBody   = `{"hello": "world"}`
	vectorDate   = "Thu, 05 Jan 2014 21:31:40 GMT"
	vectorDigest = "SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE="
)

var vectorNow = time.Date(2014, time.January, 5, 21, 31, 40, 0, time.UTC)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

// vectorRequest builds the request used by the draft-cavage examples.
func vectorRequest(t testing.TB) *http.Request {
	t.Helper()

	r := httptest.NewRequest("POST", "/foo?param=value&pet=dog", strings.NewReader(vectorBody))
	r.Header.Set("Date", vectorDate)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Digest", vectorDigest)
	r.Header.Set("Content-Length", "18")
	return r
}

// signedRequest returns vectorRequest carrying the given Authorization value.
func signedRequest(t testing.TB, authorization string) *http.Request {
	t.Helper()

	r := vectorRequest(t)
	r.Header.Set("Authorization", authorization)
	return r
}

func vectorKeys(t testing.TB) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	block, _ := pem.Decode([]byte(test.RSAPrivateKeyPEM))
	require.NotNil(t, block)
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	block, _ = pem.Decode([]byte(test.RSAPublicKeyPEM))
	require.NotNil(t, block)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	return priv, pub.(*rsa.PublicKey)
}

type keyPair struct {
	private crypto.PrivateKey
	public  crypto.PublicKey
}

var (
	generatedKeys     map[KeyAlgorithm][2]keyPair
	generatedKeysOnce sync.Once
)

// testKeys returns two distinct key pairs for every public key algorithm.
// Generation is shared by all tests in the package.
func testKeys(t testing.TB) map[KeyAlgorithm][2]keyPair {
	t.Helper()

	generatedKeysOnce.Do(func() {
		generatedKeys = map[KeyAlgorithm][2]keyPair{}
		for i := 0; i < 2; i++ {
			add := func(k KeyAlgorithm, p keyPair) {
				pairs := generatedKeys[k]
				pairs[i] = p
				generatedKeys[k] = pairs
			}

			rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
			require.NoError(t, err)
			add(KeyRSA, keyPair{rsaKey, &rsaKey.PublicKey})

			ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			require.NoError(t, err)
			add(KeyECDSA, keyPair{ecKey, &ecKey.PublicKey})

			edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
			require.NoError(t, err)
			add(KeyEd25519, keyPair{edPriv, edPub})

			dsaKey := new(dsa.PrivateKey)
			require.NoError(t, dsa.GenerateParameters(&dsaKey.Parameters, rand.Reader, dsa.L1024N160))
			require.NoError(t, dsa.GenerateKey(dsaKey, rand.Reader))
			add(KeyDSA, keyPair{dsaKey, &dsaKey.PublicKey})
		}
	})

	return generatedKeys
}

// opaqueSigner hides the concrete key type behind crypto.Signer, the way an
// HSM or KMS backed key would.
type opaqueSigner struct {
	crypto.Signer
}
