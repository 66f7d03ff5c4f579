// Package signing implements HTTP signatures as described by
// [draft-cavage-http-signatures].
//
// Inbound requests go through ParseRequest and then VerifySignature (or
// VerifyHMAC) with a key resolved from the signature's keyId. Outbound requests
// are signed with a Signer, directly or through Transport.
//
// [draft-cavage-http-signatures]: https://datatracker.ietf.org/doc/html/draft-cavage-http-signatures-12
package signing

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/fedsig/go/types/ptr"
)

type Signer interface {
	Sign(req WritableRequest) (*Signature, error)
}

// Signature describes a signature that was added to a request.
type Signature struct {
	// Header is the name of the header the signature was written to.
	Header string
	// Value is the full header value.
	Value         string
	Params        Params
	SigningString string
}

type signer struct {
	keyID   string
	key     crypto.PrivateKey
	keyType KeyAlgorithm
	options *options
}

// NewSigner creates a Signer for the given key. key may be an *rsa, *dsa or
// *ecdsa private key, an ed25519 private key, any crypto.Signer, or a []byte
// HMAC secret.
//
// By default the signature covers the Date header, which is set when the
// request has none, and uses <key type>-sha256 (ed25519-sha512 for Ed25519
// keys).
func NewSigner(keyID string, key crypto.PrivateKey, opts ...Option) (Signer, error) {
	options, err := makeOptions(opts...)
	if err != nil {
		return nil, err
	}

	if keyID == "" || strings.ContainsRune(keyID, '"') {
		return nil, fmt.Errorf("%w: %s %q cannot be serialized", ErrInvalidParams, ParamKeyID, keyID)
	}

	keyType := KeyTypeOf(key)
	if keyType == KeyUnknown {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrSigningFailure, key)
	}

	if options.algorithm == "" {
		options.algorithm = defaultAlgorithm(keyType)
	}
	pair, err := ResolveAlgorithm(options.algorithm, keyType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not supported", ErrInvalidParams, options.algorithm)
	}
	if pair.Key != keyType {
		return nil, fmt.Errorf("%w: %s cannot be used with %s keys", ErrInvalidParams, options.algorithm, keyType)
	}

	if slices.Contains(options.headers, HeaderExpires) && options.ttl <= 0 {
		return nil, fmt.Errorf("%w: %s requested without an expiry", ErrInvalidOption, HeaderExpires)
	}
	if slices.Contains(options.headers, HeaderCreated) {
		options.created = true
	}

	return &signer{
		keyID:   keyID,
		key:     key,
		keyType: keyType,
		options: options,
	}, nil
}

func defaultAlgorithm(k KeyAlgorithm) string {
	if k == KeyEd25519 {
		return "ed25519-sha512"
	}
	return k.String() + "-sha256"
}

func (s *signer) Sign(req WritableRequest) (*Signature, error) {
	now := s.options.now()

	p := Params{
		KeyID:     s.keyID,
		Algorithm: s.options.algorithm,
	}
	if s.options.created {
		created := now.Unix()
		p.Created = &created
	}
	if s.options.ttl > 0 {
		expires := now.Add(s.options.ttl).Unix()
		p.Expires = &expires
	}
	if s.options.opaque != nil {
		p.Opaque = ptr.To(s.options.opaque())
		if strings.ContainsRune(*p.Opaque, '"') {
			return nil, fmt.Errorf("%w: %s cannot contain a double quote", ErrInvalidParams, ParamOpaque)
		}
	}

	p.Headers = slices.Clone(s.options.headers)
	if len(p.Headers) == 0 {
		p.Headers = defaultHeaders(req, p, s.options.dialect)
	}

	if slices.Contains(p.Headers, "date") && len(req.HeaderValues("date")) == 0 {
		req.SetHeader("Date", now.UTC().Format(http.TimeFormat))
	}

	signingString, err := BuildSigningString(req, p, s.options.dialect)
	if err != nil {
		return nil, err
	}

	pair, err := ResolveAlgorithm(p.Algorithm, s.keyType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not supported", ErrInvalidParams, p.Algorithm)
	}

	data, err := s.options.provider.Sign(pair.Hash, []byte(signingString), s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}
	p.Signature = base64.StdEncoding.EncodeToString(data)

	value := formatHeader(serializeParams(p), s.options.prefixed())
	req.SetHeader(s.options.authorizationHeader, value)

	return &Signature{
		Header:        s.options.authorizationHeader,
		Value:         value,
		Params:        p,
		SigningString: signingString,
	}, nil
}

func serializeParams(p Params) []SignatureParameter {
	params := []SignatureParameter{
		{Key: ParamKeyID, Value: p.KeyID},
		{Key: ParamAlgorithm, Value: p.Algorithm},
	}
	if p.Created != nil {
		params = append(params, SignatureParameter{Key: ParamCreated, Value: strconv.FormatInt(*p.Created, 10)})
	}
	if p.Expires != nil {
		params = append(params, SignatureParameter{Key: ParamExpires, Value: strconv.FormatInt(*p.Expires, 10)})
	}
	params = append(params, SignatureParameter{Key: ParamHeaders, Value: strings.Join(p.Headers, " ")})
	if p.Opaque != nil {
		params = append(params, SignatureParameter{Key: ParamOpaque, Value: *p.Opaque})
	}
	return append(params, SignatureParameter{Key: ParamSignature, Value: p.Signature})
}

// SignRequest signs r in place with a one-off Signer.
func SignRequest(r *http.Request, keyID string, key crypto.PrivateKey, opts ...Option) error {
	s, err := NewSigner(keyID, key, opts...)
	if err != nil {
		return err
	}
	_, err = s.Sign(WrapRequest(r))
	return err
}
