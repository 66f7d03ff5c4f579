package signing

import (
	"crypto"
	"fmt"
	"strings"
)

// KeyAlgorithm identifies the key half of an algorithm token such as
// "rsa-sha256". The zero value, KeyUnknown, means no key type is known.
type KeyAlgorithm int

const (
	KeyUnknown KeyAlgorithm = iota
	KeyRSA
	KeyDSA
	KeyECDSA
	KeyEd25519
	KeyHMAC
	// KeyHS2019 is a placeholder produced when "hs2019" is resolved before the
	// type of the signing key is known.
	KeyHS2019
)

// HashAlgorithm identifies the hash half of an algorithm token.
type HashAlgorithm int

const (
	HashUnknown HashAlgorithm = iota
	HashSHA1
	HashSHA256
	HashSHA512
)

const algHS2019 = "hs2019"

func (k KeyAlgorithm) String() string {
	switch k {
	case KeyRSA:
		return "rsa"
	case KeyDSA:
		return "dsa"
	case KeyECDSA:
		return "ecdsa"
	case KeyEd25519:
		return "ed25519"
	case KeyHMAC:
		return "hmac"
	case KeyHS2019:
		return algHS2019
	default:
		return "unknown"
	}
}

// IsPublicKey reports whether k names an asymmetric key type.
func (k KeyAlgorithm) IsPublicKey() bool {
	switch k {
	case KeyRSA, KeyDSA, KeyECDSA, KeyEd25519:
		return true
	default:
		return false
	}
}

// ParseKeyAlgorithm maps a lower-case key type name to a KeyAlgorithm. The
// hs2019 placeholder cannot be parsed.
func ParseKeyAlgorithm(s string) (KeyAlgorithm, bool) {
	switch s {
	case "rsa":
		return KeyRSA, true
	case "dsa":
		return KeyDSA, true
	case "ecdsa":
		return KeyECDSA, true
	case "ed25519":
		return KeyEd25519, true
	case "hmac":
		return KeyHMAC, true
	default:
		return KeyUnknown, false
	}
}

func (h HashAlgorithm) String() string {
	switch h {
	case HashSHA1:
		return "sha1"
	case HashSHA256:
		return "sha256"
	case HashSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// CryptoHash returns the crypto.Hash implementing h.
func (h HashAlgorithm) CryptoHash() crypto.Hash {
	switch h {
	case HashSHA1:
		return crypto.SHA1
	case HashSHA256:
		return crypto.SHA256
	case HashSHA512:
		return crypto.SHA512
	default:
		return 0
	}
}

// ParseHashAlgorithm maps a lower-case hash name to a HashAlgorithm.
func ParseHashAlgorithm(s string) (HashAlgorithm, bool) {
	switch s {
	case "sha1":
		return HashSHA1, true
	case "sha256":
		return HashSHA256, true
	case "sha512":
		return HashSHA512, true
	default:
		return HashUnknown, false
	}
}

// AlgorithmPair is the resolved form of an algorithm token.
type AlgorithmPair struct {
	Key  KeyAlgorithm
	Hash HashAlgorithm
}

func (p AlgorithmPair) String() string {
	return p.Key.String() + "-" + p.Hash.String()
}

// ResolveAlgorithm maps an algorithm token to its key and hash algorithms.
//
// The generic "hs2019" token is resolved using keyType: Ed25519 keys resolve to
// ed25519-sha512, other public key types to <type>-sha256. When keyType is not
// a public key type the placeholder {KeyHS2019, HashSHA256} is returned.
//
// Errors wrap ErrInvalidAlgorithm.
func ResolveAlgorithm(token string, keyType KeyAlgorithm) (AlgorithmPair, error) {
	parts := strings.Split(strings.ToLower(token), "-")

	if parts[0] == algHS2019 {
		switch {
		case keyType == KeyEd25519:
			return ResolveAlgorithm("ed25519-sha512", KeyUnknown)
		case keyType.IsPublicKey():
			return ResolveAlgorithm(keyType.String()+"-sha256", KeyUnknown)
		default:
			return AlgorithmPair{Key: KeyHS2019, Hash: HashSHA256}, nil
		}
	}

	if len(parts) != 2 {
		return AlgorithmPair{}, fmt.Errorf("%w: %q is not a valid algorithm", ErrInvalidAlgorithm, token)
	}

	key, ok := ParseKeyAlgorithm(parts[0])
	if !ok {
		return AlgorithmPair{}, fmt.Errorf("%w: %s type keys are not supported", ErrInvalidAlgorithm, strings.ToUpper(parts[0]))
	}

	hash, ok := ParseHashAlgorithm(parts[1])
	if !ok {
		return AlgorithmPair{}, fmt.Errorf("%w: %s is not a supported hash algorithm", ErrInvalidAlgorithm, strings.ToUpper(parts[1]))
	}

	return AlgorithmPair{Key: key, Hash: hash}, nil
}
