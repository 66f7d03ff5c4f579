package signing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fedsig/go/types/ptr"
)

// Scheme is the auth-scheme of draft-cavage HTTP signatures.
const Scheme = "Signature"

// ParsedSignature is the result of ParseRequest. It is immutable: accessors
// return copies.
type ParsedSignature struct {
	algorithm     string
	keyID         string
	opaque        string
	signingString string
	params        Params
	dialect       Dialect
}

func (s *ParsedSignature) Scheme() string {
	return Scheme
}

// Algorithm returns the algorithm token in upper case, for display. The
// canonical lower-case token is Params().Algorithm.
func (s *ParsedSignature) Algorithm() string {
	return s.algorithm
}

func (s *ParsedSignature) KeyID() string {
	return s.keyID
}

func (s *ParsedSignature) Opaque() string {
	return s.opaque
}

// SigningString returns the exact text the signature must cover.
func (s *ParsedSignature) SigningString() string {
	return s.signingString
}

func (s *ParsedSignature) Params() Params {
	return s.params.clone()
}

func (s *ParsedSignature) Dialect() Dialect {
	return s.dialect
}

// ParseRequest extracts the signature carried by req, validates its
// parameters, builds the signing string and applies the clock skew checks.
//
// The signature is looked up in the configured authorization header (by
// default "Authorization", with the "Signature " scheme prefix) and, failing
// that, in a bare "Signature" header.
//
// Every error wraps one of ErrMissingHeader, ErrInvalidHeader,
// ErrInvalidParams, ErrExpiredRequest, ErrStrictParsing or ErrInvalidOption.
// The returned signature has not been verified; see VerifySignature.
func ParseRequest(req RequestView, opts ...Option) (*ParsedSignature, error) {
	options, err := makeOptions(opts...)
	if err != nil {
		return nil, err
	}
	now := options.now()

	value, prefixed, err := carrier(req, options)
	if err != nil {
		return nil, err
	}

	raw, err := ParseHeader(value, prefixed)
	if err != nil {
		return nil, err
	}

	params, err := validateParams(raw, req, options)
	if err != nil {
		return nil, err
	}

	signingString, err := BuildSigningString(req, params, options.dialect)
	if err != nil {
		return nil, err
	}

	if err := checkTimestamps(req, params, now, options.clockSkew); err != nil {
		return nil, err
	}

	for _, h := range options.requiredHeaders {
		if !slices.Contains(params.Headers, h) {
			return nil, fmt.Errorf("%w: %s was not a signed header", ErrMissingHeader, h)
		}
	}

	return &ParsedSignature{
		algorithm:     strings.ToUpper(params.Algorithm),
		keyID:         params.KeyID,
		opaque:        ptr.Value(params.Opaque),
		signingString: signingString,
		params:        params,
		dialect:       options.dialect,
	}, nil
}

// carrier returns the raw signature header value and whether it carries the
// auth-scheme prefix. An authorization header using another scheme, such as
// Bearer, is passed over in favour of a bare Signature header.
func carrier(req RequestView, opts *options) (string, bool, error) {
	names := []string{opts.authorizationHeader}
	if opts.prefixed() {
		names = append(names, Scheme)
	}

	otherScheme := ""
	for _, name := range names {
		vals := req.HeaderValues(name)
		switch len(vals) {
		case 0:
			continue
		case 1:
		default:
			return "", false, fmt.Errorf("%w: %s was sent %d times", ErrInvalidHeader, name, len(vals))
		}

		prefixed := !strings.EqualFold(name, Scheme)
		if scheme, _, _ := strings.Cut(vals[0], " "); prefixed && scheme != Scheme {
			otherScheme = vals[0]
			continue
		}
		return vals[0], prefixed, nil
	}

	if otherScheme != "" {
		// rejected by ParseHeader with the scheme in the message
		return otherScheme, true, nil
	}
	return "", false, fmt.Errorf("%w: no %s header was present", ErrMissingHeader, strings.ToLower(opts.authorizationHeader))
}
