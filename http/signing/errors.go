package signing

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingHeader is returned when a header named in the signature's
	// "headers" parameter, or the carrier header itself, is absent.
	ErrMissingHeader = errors.New("missing header")
	// ErrInvalidHeader is returned when the carrier header is malformed or a
	// required parameter (keyId, algorithm, signature) is absent or empty.
	ErrInvalidHeader = errors.New("invalid signature header")
	// ErrInvalidParams is returned when the parameters parse but violate a
	// semantic constraint.
	ErrInvalidParams = errors.New("invalid signature parameters")
	// ErrInvalidAlgorithm is returned by ResolveAlgorithm. ParseRequest and the
	// Signer report it as ErrInvalidParams.
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
	ErrExpiredRequest   = errors.New("expired request")
	ErrStrictParsing    = errors.New("strict parsing violation")

	ErrSigningFailure   = errors.New("failed to sign request")
	ErrInvalidOption    = errors.New("invalid signing option")
	ErrSignatureInvalid = errors.New("signature verification failed")
	ErrBodyTooLarge     = errors.New("request body too large")

	// ErrUnknownKey should be returned by a KeyResolver that does not know
	// the requested keyId.
	ErrUnknownKey = errors.New("unknown key")
)

// StatusCode maps an error returned from this package to the HTTP status a
// server should answer with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingHeader),
		errors.Is(err, ErrExpiredRequest),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrUnknownKey):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidHeader),
		errors.Is(err, ErrInvalidParams),
		errors.Is(err, ErrInvalidAlgorithm),
		errors.Is(err, ErrStrictParsing):
		return http.StatusBadRequest
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
