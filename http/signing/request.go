package signing

import (
	"net/http"
	"strconv"
	"strings"
)

// RequestView is the part of an HTTP request needed to build a signing
// string. Implementations must look up headers case-insensitively.
type RequestView interface {
	Method() string
	// Target is the request target: the path plus any query string.
	Target() string
	// ProtoVersion is the HTTP version without its "HTTP/" prefix, e.g. "1.1".
	ProtoVersion() string
	HeaderValues(name string) []string
}

// WritableRequest is a RequestView whose headers can be set by a Signer.
type WritableRequest interface {
	RequestView
	SetHeader(name, value string)
}

type httpRequest struct {
	r *http.Request
}

// WrapRequest adapts a net/http request.
//
// The Host header is read from Request.Host when it is not present in the
// header map, which is always the case for server-side requests. Likewise
// Content-Length falls back to Request.ContentLength on outgoing requests.
func WrapRequest(r *http.Request) WritableRequest {
	return httpRequest{r: r}
}

func (h httpRequest) Method() string {
	return h.r.Method
}

func (h httpRequest) Target() string {
	// On the server RequestURI holds the target exactly as it was sent.
	if h.r.RequestURI != "" {
		return h.r.RequestURI
	}
	return h.r.URL.RequestURI()
}

func (h httpRequest) ProtoVersion() string {
	major, minor := h.r.ProtoMajor, h.r.ProtoMinor
	if major == 0 && minor == 0 {
		major, minor = 1, 1
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}

func (h httpRequest) HeaderValues(name string) []string {
	vals := h.r.Header.Values(name)
	if len(vals) > 0 {
		return vals
	}
	switch {
	case strings.EqualFold(name, "host"):
		if h.r.Host != "" {
			return []string{h.r.Host}
		}
		if h.r.URL != nil && h.r.URL.Host != "" {
			return []string{h.r.URL.Host}
		}
	case strings.EqualFold(name, "content-length"):
		if h.r.ContentLength > 0 {
			return []string{strconv.FormatInt(h.r.ContentLength, 10)}
		}
	}
	return nil
}

func (h httpRequest) SetHeader(name, value string) {
	if h.r.Header == nil {
		h.r.Header = make(http.Header)
	}
	h.r.Header.Set(name, value)
}
