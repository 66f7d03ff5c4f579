package signing

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/fedsig/go/types/ptr"
)

// Parameter names as they are written on the wire.
const (
	ParamKeyID     = "keyId"
	ParamAlgorithm = "algorithm"
	ParamHeaders   = "headers"
	ParamSignature = "signature"
	ParamCreated   = "created"
	ParamExpires   = "expires"
	ParamOpaque    = "opaque"
)

var numericParams = map[string]bool{
	ParamCreated: true,
	ParamExpires: true,
}

var (
	pattSignedInt   = regexp.MustCompile(`\A[+-]?[0-9]+\z`)
	pattUnsignedInt = regexp.MustCompile(`\A[0-9]+\z`)
)

// Params is the validated, normalized parameter set of a signature.
type Params struct {
	KeyID string
	// Algorithm is the lower-cased algorithm token.
	Algorithm string
	// Signature is the base64 signature text, not decoded.
	Signature string
	// Headers lists the lower-cased header and pseudo-header names covered
	// by the signature, in signing order.
	Headers []string
	Created *int64
	Expires *int64
	// Opaque is nil when the parameter was absent. An empty opaque is still
	// signed as "(opaque): ".
	Opaque *string
}

func (p Params) clone() Params {
	p.Headers = slices.Clone(p.Headers)
	if p.Created != nil {
		p.Created = ptr.To(*p.Created)
	}
	if p.Expires != nil {
		p.Expires = ptr.To(*p.Expires)
	}
	if p.Opaque != nil {
		p.Opaque = ptr.To(*p.Opaque)
	}
	return p
}

// paramMap folds parameters into a map keyed by lower-cased name. Repeated
// names are resolved according to the dialect.
func paramMap(params []SignatureParameter, d Dialect) (map[string]string, error) {
	m := make(map[string]string, len(params))
	for _, p := range params {
		k := strings.ToLower(p.Key)
		if _, ok := m[k]; ok && d == DialectStrict {
			return nil, fmt.Errorf("%w: repeated parameter %s is not permitted", ErrInvalidParams, p.Key)
		}
		m[k] = p.Value
	}
	return m, nil
}

// validateParams extracts and checks the parameters of a signature. req is
// consulted only to choose the default header list.
func validateParams(raw []SignatureParameter, req RequestView, opts *options) (Params, error) {
	var p Params

	m, err := paramMap(raw, opts.dialect)
	if err != nil {
		return p, err
	}

	p.KeyID = m[strings.ToLower(ParamKeyID)]
	if p.KeyID == "" {
		return p, fmt.Errorf("%w: %s was not specified", ErrInvalidHeader, ParamKeyID)
	}

	alg, ok := m[ParamAlgorithm]
	if !ok || alg == "" {
		return p, fmt.Errorf("%w: %s was not specified", ErrInvalidHeader, ParamAlgorithm)
	}
	p.Algorithm = strings.ToLower(alg)

	p.Signature = m[ParamSignature]
	if p.Signature == "" {
		return p, fmt.Errorf("%w: %s was not specified", ErrInvalidHeader, ParamSignature)
	}

	if len(opts.algorithms) > 0 && !slices.Contains(opts.algorithms, p.Algorithm) {
		return p, fmt.Errorf("%w: %s is not a supported algorithm", ErrInvalidParams, p.Algorithm)
	}

	if _, err := ResolveAlgorithm(p.Algorithm, KeyUnknown); err != nil {
		return p, fmt.Errorf("%w: %s is not supported", ErrInvalidParams, p.Algorithm)
	}

	for _, name := range []string{ParamCreated, ParamExpires} {
		v, ok := m[name]
		if !ok {
			continue
		}
		n, err := parseTimestamp(name, v, opts.dialect)
		if err != nil {
			return p, err
		}
		if name == ParamCreated {
			p.Created = ptr.To(n)
		} else {
			p.Expires = ptr.To(n)
		}
	}

	if v, ok := m[ParamOpaque]; ok {
		p.Opaque = ptr.To(v)
	}

	if v, ok := m[ParamHeaders]; ok {
		p.Headers, err = splitHeaders(v, opts.dialect)
		if err != nil {
			return p, err
		}
	} else {
		p.Headers = defaultHeaders(req, p, opts.dialect)
	}

	if slices.Contains(p.Headers, HeaderCreated) && p.Created == nil {
		return p, fmt.Errorf("%w: %s was signed but %s was not specified", ErrInvalidParams, HeaderCreated, ParamCreated)
	}
	if slices.Contains(p.Headers, HeaderExpires) && p.Expires == nil {
		return p, fmt.Errorf("%w: %s was signed but %s was not specified", ErrInvalidParams, HeaderExpires, ParamExpires)
	}

	return p, nil
}

// parseTimestamp validates a created or expires value. Decimals are never
// accepted; explicitly signed integers are accepted only by DialectLegacy.
func parseTimestamp(name, v string, d Dialect) (int64, error) {
	patt := pattSignedInt
	if d == DialectStrict {
		patt = pattUnsignedInt
	}
	if !patt.MatchString(v) {
		return 0, fmt.Errorf("%w: %s parameter must be an integer, got %q", ErrInvalidParams, name, v)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s parameter out of range", ErrInvalidParams, name)
	}
	return n, nil
}

func splitHeaders(v string, d Dialect) ([]string, error) {
	fields := strings.Split(strings.ToLower(v), " ")
	for i, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("%w: %s parameter contains an empty entry", ErrInvalidParams, ParamHeaders)
		}
		if d == DialectStrict && slices.Contains(fields[:i], f) {
			return nil, fmt.Errorf("%w: %s is listed more than once in %s", ErrInvalidParams, f, ParamHeaders)
		}
	}
	return fields, nil
}

func defaultHeaders(req RequestView, p Params, d Dialect) []string {
	if d == DialectStrict {
		if p.Created != nil {
			return []string{HeaderCreated}
		}
		return []string{"date"}
	}
	if len(req.HeaderValues("x-date")) > 0 {
		return []string{"x-date"}
	}
	return []string{"date"}
}
