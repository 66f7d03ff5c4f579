package signing

import (
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

// DefaultClockSkew is the tolerance applied to created, expires and Date when
// WithClockSkew is not given.
const DefaultClockSkew = 300 * time.Second

// Dialect selects between the two historical parsing behaviours.
type Dialect int

const (
	// DialectLegacy accepts the obsolete request-line pseudo-header, signed
	// integers for created and expires, and lets the last of a repeated
	// parameter win.
	DialectLegacy Dialect = iota
	// DialectStrict rejects request-line, signed integers, repeated
	// parameters and repeated entries in the headers list.
	DialectStrict
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "legacy"
	case DialectStrict:
		return "strict"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

type Option interface {
	apply(*options) error
}

type options struct {
	dialect             Dialect
	authorizationHeader string
	clockSkew           time.Duration
	now                 func() time.Time
	provider            Provider

	// parsing
	algorithms      []string
	requiredHeaders []string

	// signing
	headers   []string
	algorithm string
	opaque    func() string
	created   bool
	ttl       time.Duration
}

type optionFunc func(*options) error

func (fn optionFunc) apply(opts *options) error {
	return fn(opts)
}

// WithAlgorithms restricts ParseRequest to the given algorithm tokens. Tokens
// are compared case-insensitively.
func WithAlgorithms(algs ...string) Option {
	return optionFunc(func(opts *options) error {
		opts.algorithms = make([]string, len(algs))
		for i, a := range algs {
			opts.algorithms[i] = strings.ToLower(a)
		}
		return nil
	})
}

// WithAuthorizationHeader changes the header the signature is carried in. The
// "Signature" header always uses the bare parameter form; any other header is
// prefixed with the "Signature " auth-scheme.
func WithAuthorizationHeader(name string) Option {
	return optionFunc(func(opts *options) error {
		if name == "" {
			return fmt.Errorf("%w: empty authorization header name", ErrInvalidOption)
		}
		opts.authorizationHeader = textproto.CanonicalMIMEHeaderKey(name)
		return nil
	})
}

// WithClockSkew sets the tolerance used by the temporal checks. It is applied
// with one second granularity.
func WithClockSkew(skew time.Duration) Option {
	return optionFunc(func(opts *options) error {
		if skew < 0 {
			return fmt.Errorf("%w: negative clock skew %s", ErrInvalidOption, skew)
		}
		opts.clockSkew = skew
		return nil
	})
}

// WithRequiredHeaders lists header names that must be covered by a signature
// for ParseRequest to accept it.
func WithRequiredHeaders(names ...string) Option {
	return optionFunc(func(opts *options) error {
		opts.requiredHeaders = make([]string, len(names))
		for i, n := range names {
			opts.requiredHeaders[i] = strings.ToLower(n)
		}
		return nil
	})
}

// Strict is shorthand for WithDialect(DialectStrict).
func Strict() Option {
	return WithDialect(DialectStrict)
}

func WithDialect(d Dialect) Option {
	return optionFunc(func(opts *options) error {
		if d != DialectLegacy && d != DialectStrict {
			return fmt.Errorf("%w: unknown dialect %s", ErrInvalidOption, d)
		}
		opts.dialect = d
		return nil
	})
}

// WithClock replaces time.Now. The clock is read once per call.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(opts *options) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidOption)
		}
		opts.now = now
		return nil
	})
}

// WithProvider replaces the cryptographic provider.
func WithProvider(p Provider) Option {
	return optionFunc(func(opts *options) error {
		if p == nil {
			return fmt.Errorf("%w: nil provider", ErrInvalidOption)
		}
		opts.provider = p
		return nil
	})
}

// WithHeaders sets the headers and pseudo-headers a Signer covers, in order.
func WithHeaders(names ...string) Option {
	return optionFunc(func(opts *options) error {
		if len(names) == 0 {
			return fmt.Errorf("%w: empty header list", ErrInvalidOption)
		}
		opts.headers = make([]string, len(names))
		for i, n := range names {
			if n == "" || strings.ContainsAny(n, " \"") {
				return fmt.Errorf("%w: invalid header name %q", ErrInvalidOption, n)
			}
			opts.headers[i] = strings.ToLower(n)
		}
		return nil
	})
}

// WithAlgorithm sets the algorithm token a Signer advertises, for example
// "hs2019" or "rsa-sha512".
func WithAlgorithm(alg string) Option {
	return optionFunc(func(opts *options) error {
		if _, err := ResolveAlgorithm(alg, KeyUnknown); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
		opts.algorithm = strings.ToLower(alg)
		return nil
	})
}

// WithOpaque sets the opaque parameter emitted by a Signer.
func WithOpaque(opaque string) Option {
	return optionFunc(func(opts *options) error {
		opts.opaque = func() string { return opaque }
		return nil
	})
}

// WithRandomOpaque makes a Signer emit a fresh KSUID as the opaque parameter
// of every signature.
func WithRandomOpaque() Option {
	return optionFunc(func(opts *options) error {
		opts.opaque = func() string { return ksuid.New().String() }
		return nil
	})
}

// WithCreated makes a Signer emit the created parameter.
func WithCreated() Option {
	return optionFunc(func(opts *options) error {
		opts.created = true
		return nil
	})
}

// WithExpiry sets the time-to-live for the signature. This is used to calculate
// the "expires" parameter.
//
// Values of expiry <= 0 will be ignored.
func WithExpiry(expiry time.Duration) Option {
	return optionFunc(func(opts *options) error {
		opts.ttl = expiry
		return nil
	})
}

func makeOptions(opts ...Option) (*options, error) {
	options := &options{
		authorizationHeader: "Authorization",
		clockSkew:           DefaultClockSkew,
		now:                 time.Now,
		provider:            StandardProvider{},
	}
	for _, o := range opts {
		if err := o.apply(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// prefixed reports whether the carrier header uses the "Signature " scheme
// prefix.
func (o *options) prefixed() bool {
	return !strings.EqualFold(o.authorizationHeader, "Signature")
}
