package signing

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// A parameter is either a quoted string or, for created and expires, a
	// bare run of digits. Quoted values may not contain a double quote; there
	// is no escaping.
	//
	//     param  = name "=" ( DQUOTE *( %x00-21 / %x23-FF ) DQUOTE / 1*DIGIT )
	//     name   = 1*ALPHA
	reParam = `([A-Za-z]+)=(?:"([^"]*)"|([0-9]+))`

	// authScheme prefixes the parameter list when it is carried in an
	// Authorization-style header.
	authScheme = "Signature "
)

var (
	// params = param *( "," param )
	pattParams = regexp.MustCompile(`\A` + reParam + `(?:,` + reParam + `)*\z`)
	pattParam  = regexp.MustCompile(reParam)
)

// SignatureParameter is one raw key/value pair from a signature header.
type SignatureParameter struct {
	Key   string
	Value string
}

// ParseHeader tokenizes a signature header value into its parameters, in order
// of appearance. When prefixed is true the value must begin with the literal
// "Signature " auth-scheme, as it does inside an Authorization header.
//
// Errors wrap ErrInvalidHeader.
func ParseHeader(value string, prefixed bool) ([]SignatureParameter, error) {
	if prefixed {
		if !strings.HasPrefix(value, authScheme) {
			return nil, fmt.Errorf("%w: scheme was not %q", ErrInvalidHeader, strings.TrimSpace(authScheme))
		}
		value = value[len(authScheme):]
	}

	if !pattParams.MatchString(value) {
		return nil, fmt.Errorf("%w: malformed parameter list", ErrInvalidHeader)
	}

	matches := pattParam.FindAllStringSubmatch(value, -1)
	params := make([]SignatureParameter, len(matches))
	for i, m := range matches {
		v := m[2]
		if m[3] != "" {
			v = m[3]
		}
		params[i] = SignatureParameter{Key: m[1], Value: v}
	}

	return params, nil
}

// formatHeader serializes parameters back into the grammar accepted by
// ParseHeader. Numeric parameters are emitted without quotes.
func formatHeader(params []SignatureParameter, prefixed bool) string {
	var b strings.Builder
	if prefixed {
		b.WriteString(authScheme)
	}
	for i, p := range params {
		if i > 0 {
			b.WriteRune(',')
		}
		b.WriteString(p.Key)
		b.WriteRune('=')
		if numericParams[strings.ToLower(p.Key)] {
			b.WriteString(p.Value)
			continue
		}
		b.WriteRune('"')
		b.WriteString(p.Value)
		b.WriteRune('"')
	}
	return b.String()
}
