package signing

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	reporting "github.com/fedsig/go/errors"
	"github.com/fedsig/go/http/digest"
	"github.com/fedsig/go/logging"
	"github.com/fedsig/go/must"
	"github.com/fedsig/go/telemetry"
)

var (
	logger = logging.New("signing")
	tracer = telemetry.Tracer("httpsig", "signing")

	verifications = must.Get(telemetry.Meter("httpsig", "signing").Int64Counter(
		"signing.verifications",
		metric.WithDescription("Inbound signature verifications by outcome"),
	))
)

// KeyResolver finds the key a signature's keyId refers to. It returns a
// crypto.PublicKey, or a []byte secret for hmac signatures. Unknown keys
// should be reported with an error wrapping ErrUnknownKey.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

type KeyResolverFunc func(ctx context.Context, keyID string) (crypto.PublicKey, error)

func (f KeyResolverFunc) ResolveKey(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	return f(ctx, keyID)
}

// DefaultMaxBodyBytes bounds the body Middleware reads to check a Digest.
const DefaultMaxBodyBytes int64 = 1 << 20

type MiddlewareConfig struct {
	Resolver KeyResolver
	// Options are passed to ParseRequest and VerifySignature.
	Options []Option
	// VerifyDigest checks the Digest header against the body whenever
	// "digest" is a signed header.
	VerifyDigest bool
	// MaxBodyBytes caps the body read for VerifyDigest. Zero means
	// DefaultMaxBodyBytes and a negative value disables the cap.
	MaxBodyBytes int64
	// OnError writes the response for a rejected request. By default the
	// status from StatusCode is written with an empty body.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

type contextKey int

const parsedSignatureKey contextKey = iota

// FromContext returns the verified signature stored by Middleware.
func FromContext(ctx context.Context) (*ParsedSignature, bool) {
	s, ok := ctx.Value(parsedSignatureKey).(*ParsedSignature)
	return s, ok
}

// Middleware rejects requests without a valid signature. Accepted requests
// reach next with the ParsedSignature available from FromContext.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	onError := cfg.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			status := StatusCode(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Signature realm="fedsig"`)
			}
			w.WriteHeader(status)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "signing.verify")
			defer span.End()
			mark := telemetry.Timer(span, "signing")

			parsed, err := authenticate(ctx, w, r, cfg, mark)
			if parsed != nil {
				span.SetAttributes(
					attribute.String("signing.key_id", parsed.KeyID()),
					attribute.String("signing.algorithm", parsed.Params().Algorithm),
				)
				ctx = logging.AddFields(ctx,
					zap.String("key_id", parsed.KeyID()),
					zap.String("algorithm", parsed.Params().Algorithm),
				)
			}

			outcome := "accepted"
			if err != nil {
				outcome = outcomeOf(err)
			}
			span.SetAttributes(attribute.String("signing.outcome", outcome))
			verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				log := logger.With(logging.GetFields(ctx)...)
				if StatusCode(err) == http.StatusInternalServerError {
					log.Error("failed to verify request signature", zap.Error(err))
					reporting.Report(ctx, err)
				} else {
					log.Info("rejected request signature", zap.String("reason", err.Error()))
				}
				onError(w, r, err)
				return
			}

			ctx = context.WithValue(ctx, parsedSignatureKey, parsed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifyRequest runs the checks Middleware performs, without writing a
// response or recording telemetry. Like Middleware it returns the parsed
// signature whenever parsing succeeded, even if verification then failed.
func VerifyRequest(ctx context.Context, r *http.Request, cfg MiddlewareConfig) (*ParsedSignature, error) {
	return authenticate(ctx, nil, r, cfg, func(string) {})
}

// authenticate returns the parsed signature, when parsing got that far, even
// if verification failed.
func authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, cfg MiddlewareConfig, mark func(string)) (*ParsedSignature, error) {
	parsed, err := ParseRequest(WrapRequest(r), cfg.Options...)
	mark("parse")
	if err != nil {
		return nil, err
	}

	if cfg.Resolver == nil {
		return parsed, errors.New("signing middleware has no key resolver")
	}
	key, err := cfg.Resolver.ResolveKey(ctx, parsed.KeyID())
	mark("resolve")
	if err != nil {
		return parsed, fmt.Errorf("resolving key %s: %w", parsed.KeyID(), err)
	}

	var ok bool
	if secret, isSecret := key.([]byte); isSecret {
		ok, err = VerifyHMAC(parsed, secret, cfg.Options...)
	} else {
		ok, err = VerifySignature(parsed, key, cfg.Options...)
	}
	mark("verify")
	if err != nil {
		return parsed, err
	}
	if !ok {
		return parsed, fmt.Errorf("%w for %s", ErrSignatureInvalid, parsed.KeyID())
	}

	if cfg.VerifyDigest && slices.Contains(parsed.params.Headers, "digest") {
		limit := cfg.MaxBodyBytes
		if limit == 0 {
			limit = DefaultMaxBodyBytes
		}
		if limit > 0 && r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		if err := digest.Verify(r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return parsed, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, tooLarge.Limit)
			}
			return parsed, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
		}
	}

	return parsed, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrExpiredRequest):
		return "expired"
	case errors.Is(err, ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, ErrSignatureInvalid):
		return "invalid"
	case errors.Is(err, ErrBodyTooLarge):
		return "too_large"
	}
	switch StatusCode(err) {
	case http.StatusBadRequest:
		return "malformed"
	case http.StatusUnauthorized:
		return "missing"
	default:
		return "error"
	}
}
