package signing

import (
	"fmt"
	"strconv"
	"strings"
)

// Pseudo-header names accepted in the "headers" parameter.
const (
	HeaderRequestTarget = "(request-target)"
	HeaderKeyID         = "(keyid)"
	HeaderAlgorithm     = "(algorithm)"
	HeaderOpaque        = "(opaque)"
	HeaderCreated       = "(created)"
	HeaderExpires       = "(expires)"
	// HeaderRequestLine is the obsolete form of (request-target). It exposes
	// the HTTP version and is rejected by DialectStrict.
	HeaderRequestLine = "request-line"
)

var pseudoComponents = map[string]bool{
	HeaderRequestTarget: true,
	HeaderKeyID:         true,
	HeaderAlgorithm:     true,
	HeaderOpaque:        true,
	HeaderCreated:       true,
	HeaderExpires:       true,
}

// ValidatedComponents is an ordered list of signable elements, ready to be
// rendered into a signing string.
type ValidatedComponents []component

type component interface {
	Name() string
	Line(req RequestView, p Params) (string, error)
}

// Components validates a list of lower-case header names for the given
// dialect.
func Components(names []string, d Dialect) (ValidatedComponents, error) {
	cs := make(ValidatedComponents, len(names))
	for i, name := range names {
		switch {
		case name == HeaderRequestLine:
			if d == DialectStrict {
				return nil, fmt.Errorf("%w: %s is not a valid header with strict parsing enabled", ErrStrictParsing, HeaderRequestLine)
			}
			cs[i] = requestLineComponent{}
		case pseudoComponents[name]:
			cs[i] = pseudoComponent{name: name}
		default:
			cs[i] = fieldComponent{name: name}
		}
	}
	return cs, nil
}

func MustComponents(names []string, d Dialect) ValidatedComponents {
	cs, err := Components(names, d)
	if err != nil {
		panic(err)
	}
	return cs
}

// SigningString renders the components, one line each, joined by newlines.
func (cs ValidatedComponents) SigningString(req RequestView, p Params) (string, error) {
	var b strings.Builder
	for i, c := range cs {
		line, err := c.Line(req, p)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteRune('\n')
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

func (cs ValidatedComponents) Names() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return names
}

// BuildSigningString reconstructs the canonical string covered by a
// signature. It is a pure function of its arguments.
func BuildSigningString(req RequestView, p Params, d Dialect) (string, error) {
	cs, err := Components(p.Headers, d)
	if err != nil {
		return "", err
	}
	return cs.SigningString(req, p)
}

type requestLineComponent struct{}

func (requestLineComponent) Name() string {
	return HeaderRequestLine
}

func (requestLineComponent) Line(req RequestView, _ Params) (string, error) {
	return req.Method() + " " + req.Target() + " HTTP/" + req.ProtoVersion(), nil
}

type pseudoComponent struct {
	name string
}

func (c pseudoComponent) Name() string {
	return c.name
}

func (c pseudoComponent) Line(req RequestView, p Params) (string, error) {
	var value string
	switch c.name {
	case HeaderRequestTarget:
		value = strings.ToLower(req.Method()) + " " + req.Target()
	case HeaderKeyID:
		value = p.KeyID
	case HeaderAlgorithm:
		value = p.Algorithm
	case HeaderOpaque:
		if p.Opaque == nil {
			return "", fmt.Errorf("%w: %s was not in the request", ErrMissingHeader, ParamOpaque)
		}
		value = *p.Opaque
	case HeaderCreated:
		// Params are checked for these before a signing string is built.
		if p.Created == nil {
			return "", fmt.Errorf("%s requested but %s is not set", HeaderCreated, ParamCreated)
		}
		value = strconv.FormatInt(*p.Created, 10)
	case HeaderExpires:
		if p.Expires == nil {
			return "", fmt.Errorf("%s requested but %s is not set", HeaderExpires, ParamExpires)
		}
		value = strconv.FormatInt(*p.Expires, 10)
	default:
		return "", fmt.Errorf("%w: unknown pseudo-header %s", ErrInvalidParams, c.name)
	}
	return c.name + ": " + value, nil
}

type fieldComponent struct {
	name string
}

func (c fieldComponent) Name() string {
	return c.name
}

func (c fieldComponent) Line(req RequestView, _ Params) (string, error) {
	vals := req.HeaderValues(c.name)
	switch len(vals) {
	case 0:
		return "", fmt.Errorf("%w: %s was not in the request", ErrMissingHeader, c.name)
	case 1:
		return c.name + ": " + vals[0], nil
	default:
		return "", fmt.Errorf("%w: %s was sent %d times", ErrInvalidHeader, c.name, len(vals))
	}
}
