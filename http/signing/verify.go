package signing

import (
	"crypto"
	"encoding/base64"
	"fmt"
)

// VerifySignature checks parsed against publicKey.
//
// A signature that does not verify, whose algorithm names a different key type
// than publicKey, or that names hmac, yields false with a nil error. An error
// is returned only when the algorithm cannot be resolved at all, or when the
// provider itself fails. Only WithProvider is consulted from opts.
func VerifySignature(parsed *ParsedSignature, publicKey crypto.PublicKey, opts ...Option) (bool, error) {
	options, err := makeOptions(opts...)
	if err != nil {
		return false, err
	}

	keyType := KeyTypeOf(publicKey)
	pair, err := ResolveAlgorithm(parsed.params.Algorithm, keyType)
	if err != nil {
		return false, fmt.Errorf("%w: %s is not supported", ErrInvalidParams, parsed.params.Algorithm)
	}

	if pair.Key == KeyHMAC || pair.Key != keyType {
		return false, nil
	}

	return verify(options.provider, pair.Hash, parsed, publicKey)
}

// VerifyHMAC checks an hmac-* signature against a shared secret. Signatures
// using any other algorithm yield false.
func VerifyHMAC(parsed *ParsedSignature, secret []byte, opts ...Option) (bool, error) {
	options, err := makeOptions(opts...)
	if err != nil {
		return false, err
	}

	pair, err := ResolveAlgorithm(parsed.params.Algorithm, KeyHMAC)
	if err != nil {
		return false, fmt.Errorf("%w: %s is not supported", ErrInvalidParams, parsed.params.Algorithm)
	}

	if pair.Key != KeyHMAC || len(secret) == 0 {
		return false, nil
	}

	return verify(options.provider, pair.Hash, parsed, secret)
}

func verify(p Provider, hash HashAlgorithm, parsed *ParsedSignature, key crypto.PublicKey) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(parsed.params.Signature)
	if err != nil {
		return false, nil
	}
	return p.Verify(hash, []byte(parsed.signingString), sig, key)
}
