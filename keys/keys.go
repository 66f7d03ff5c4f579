// Package keys loads and serializes the key material used for HTTP
// signatures, and resolves signature keyIds to public keys.
//
// Private keys may be PKCS #1, PKCS #8, SEC 1, DSA or OpenSSH encoded. Public
// keys may be PKIX or PKCS #1 PEM blocks, certificates, or OpenSSH
// authorized_keys lines.
package keys

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
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/fedsig/go/http/signing"
)

var (
	ErrUnsupportedKey = errors.New("unsupported key")
	ErrNoKey          = errors.New("no key found")
)

// ParsePrivateKey parses a PEM encoded private key. Ed25519 keys are always
// returned as ed25519.PrivateKey values.
func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	key, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoKey, err)
	}
	return checkPrivate(key)
}

// ParsePrivateKeyWithPassphrase is ParsePrivateKey for encrypted keys.
func ParsePrivateKeyWithPassphrase(data, passphrase []byte) (crypto.PrivateKey, error) {
	key, err := ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoKey, err)
	}
	return checkPrivate(key)
}

func checkPrivate(key any) (crypto.PrivateKey, error) {
	if k, ok := key.(*ed25519.PrivateKey); ok {
		key = *k
	}
	if signing.KeyTypeOf(key) == signing.KeyUnknown {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return key, nil
}

// ParsePublicKey parses a PEM encoded public key or certificate, or a single
// OpenSSH authorized_keys line.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return parseAuthorizedKey(data)
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "PUBLIC KEY":
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			key = cert.PublicKey
		}
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrNoKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoKey, err)
	}
	return checkPublic(key)
}

func parseAuthorizedKey(data []byte) (crypto.PublicKey, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: neither PEM nor an authorized key: %w", ErrNoKey, err)
	}
	ck, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, pub.Type())
	}
	return checkPublic(ck.CryptoPublicKey())
}

func checkPublic(key any) (crypto.PublicKey, error) {
	switch signing.KeyTypeOf(key) {
	case signing.KeyUnknown, signing.KeyHMAC:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return key, nil
}

// PublicKey returns the public half of a private key.
func PublicKey(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	switch k := priv.(type) {
	case *dsa.PrivateKey:
		return &k.PublicKey, nil
	case crypto.Signer:
		return k.Public(), nil
	default:
		return nil, fmt.Errorf("%w: %T has no public key", ErrUnsupportedKey, priv)
	}
}

// Generate creates a new private key. RSA keys are 2048 bits and ECDSA keys
// use P-256.
func Generate(alg signing.KeyAlgorithm) (crypto.PrivateKey, error) {
	switch alg {
	case signing.KeyRSA:
		return rsa.GenerateKey(rand.Reader, 2048)
	case signing.KeyECDSA:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case signing.KeyEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	default:
		return nil, fmt.Errorf("%w: cannot generate %s keys", ErrUnsupportedKey, alg)
	}
}

// MarshalPrivateKey encodes priv as a PKCS #8 PEM block.
func MarshalPrivateKey(priv crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKey encodes pub as a PKIX PEM block.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalAuthorizedKey encodes pub as an OpenSSH authorized_keys line,
// including the trailing newline. Unlike MarshalPublicKey it supports DSA.
func MarshalAuthorizedKey(pub crypto.PublicKey) ([]byte, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return ssh.MarshalAuthorizedKey(sshPub), nil
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of pub, as printed by
// ssh-keygen -l.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}
