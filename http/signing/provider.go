package signing

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // draft-cavage still lists dsa-* algorithms
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// Provider is the cryptographic capability used to produce and check
// signatures. The key type is taken from the key itself; hash is the hash
// resolved from the algorithm token.
type Provider interface {
	Verify(hash HashAlgorithm, signingString, signature []byte, publicKey crypto.PublicKey) (bool, error)
	Sign(hash HashAlgorithm, signingString []byte, privateKey crypto.PrivateKey) ([]byte, error)
}

// StandardProvider implements Provider on top of the Go standard library.
//
// Supported keys are *rsa, *dsa and *ecdsa keys, ed25519 keys, []byte HMAC
// secrets and, for signing, any crypto.Signer. RSA uses PKCS #1 v1.5, DSA and
// ECDSA signatures are ASN.1 encoded, and Ed25519 ignores hash.
type StandardProvider struct{}

type dsaSignature struct {
	R, S *big.Int
}

func hashOf(hash HashAlgorithm, data []byte) (crypto.Hash, []byte, error) {
	h := hash.CryptoHash()
	if h == 0 || !h.Available() {
		return 0, nil, fmt.Errorf("%w: unsupported hash %s", ErrInvalidAlgorithm, hash)
	}
	w := h.New()
	w.Write(data)
	return h, w.Sum(nil), nil
}

func (StandardProvider) Sign(hash HashAlgorithm, signingString []byte, privateKey crypto.PrivateKey) ([]byte, error) {
	switch k := privateKey.(type) {
	case ed25519.PrivateKey:
		return ed25519.Sign(k, signingString), nil
	case *ed25519.PrivateKey:
		return ed25519.Sign(*k, signingString), nil
	case []byte:
		h := hash.CryptoHash()
		if h == 0 {
			return nil, fmt.Errorf("%w: unsupported hash %s", ErrInvalidAlgorithm, hash)
		}
		mac := hmac.New(h.New, k)
		mac.Write(signingString)
		return mac.Sum(nil), nil
	}

	h, sum, err := hashOf(hash, signingString)
	if err != nil {
		return nil, err
	}

	switch k := privateKey.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, k, h, sum)
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, k, sum)
	case *dsa.PrivateKey:
		r, s, err := dsa.Sign(rand.Reader, k, truncate(sum, k.Q))
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(dsaSignature{R: r, S: s})
	case crypto.Signer:
		if KeyTypeOf(k.Public()) == KeyEd25519 {
			return k.Sign(rand.Reader, signingString, crypto.Hash(0))
		}
		return k.Sign(rand.Reader, sum, h)
	default:
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrSigningFailure, privateKey)
	}
}

func (StandardProvider) Verify(hash HashAlgorithm, signingString, signature []byte, publicKey crypto.PublicKey) (bool, error) {
	switch k := publicKey.(type) {
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return false, nil
		}
		return ed25519.Verify(k, signingString, signature), nil
	case []byte:
		expected, err := StandardProvider{}.Sign(hash, signingString, k)
		if err != nil {
			return false, err
		}
		return hmac.Equal(expected, signature), nil
	}

	h, sum, err := hashOf(hash, signingString)
	if err != nil {
		return false, err
	}

	switch k := publicKey.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(k, h, sum, signature) == nil, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(k, sum, signature), nil
	case *dsa.PublicKey:
		var sig dsaSignature
		rest, err := asn1.Unmarshal(signature, &sig)
		if err != nil || len(rest) > 0 || sig.R == nil || sig.S == nil {
			return false, nil
		}
		return dsa.Verify(k, truncate(sum, k.Q), sig.R, sig.S), nil
	default:
		return false, nil
	}
}

// truncate shortens a digest to the byte length of the DSA subgroup order.
func truncate(sum []byte, q *big.Int) []byte {
	n := (q.BitLen() + 7) / 8
	if len(sum) > n {
		return sum[:n]
	}
	return sum
}

// KeyTypeOf reports the key algorithm of a public key, private key or HMAC
// secret. It returns KeyUnknown for anything else.
func KeyTypeOf(key any) KeyAlgorithm {
	switch k := key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return KeyRSA
	case *dsa.PublicKey, *dsa.PrivateKey:
		return KeyDSA
	case *ecdsa.PublicKey, *ecdsa.PrivateKey:
		return KeyECDSA
	case ed25519.PublicKey, ed25519.PrivateKey, *ed25519.PrivateKey:
		return KeyEd25519
	case []byte:
		return KeyHMAC
	case crypto.Signer:
		return KeyTypeOf(k.Public())
	default:
		return KeyUnknown
	}
}
