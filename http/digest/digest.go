// Package digest implements the HTTP Digest header as used alongside
// draft-cavage HTTP signatures, e.g.
//
//	Digest: SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE=
//
// Signing a request's "digest" header binds the signature to its body.
package digest

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
)

const Header = "Digest"

var (
	ErrMissing     = errors.New("digest header missing")
	ErrUnsupported = errors.New("no supported digest algorithm")
	ErrMismatch    = errors.New("digest does not match body")
)

// Algorithm is a digest algorithm name as written in the header.
type Algorithm string

const (
	SHA256 Algorithm = "SHA-256"
	SHA512 Algorithm = "SHA-512"
)

func (a Algorithm) new() (hash.Hash, error) {
	switch Algorithm(strings.ToUpper(string(a))) {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, a)
	}
}

// Compute returns the Digest header value for body.
func Compute(alg Algorithm, body []byte) (string, error) {
	h, err := alg.new()
	if err != nil {
		return "", err
	}
	h.Write(body)
	return format(alg, h.Sum(nil)), nil
}

func format(alg Algorithm, sum []byte) string {
	return string(alg) + "=" + base64.StdEncoding.EncodeToString(sum)
}

// Verify checks the Digest header of r against its body. The body is read in
// full and replaced so that handlers can read it again.
//
// Every supported algorithm listed in the header must match. Unsupported
// algorithms are ignored, but at least one supported algorithm must be present.
func Verify(r *http.Request) error {
	value := r.Header.Get(Header)
	if value == "" {
		return ErrMissing
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	checked := 0
	for _, entry := range strings.Split(value, ",") {
		alg, encoded, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		h, err := Algorithm(alg).new()
		if err != nil {
			continue
		}
		h.Write(body)
		expected := base64.StdEncoding.EncodeToString(h.Sum(nil))
		if expected != encoded {
			return fmt.Errorf("%w: %s", ErrMismatch, strings.ToUpper(alg))
		}
		checked++
	}

	if checked == 0 {
		return fmt.Errorf("%w in %q", ErrUnsupported, value)
	}
	return nil
}
