// Package errors wires up Sentry for errors that are not the caller's fault,
// such as a key store being unreachable while verifying a signature.
package errors

import (
	"context"
	"net/http"
	"os"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"go.uber.org/zap"

	"github.com/fedsig/go/logging"
	"github.com/fedsig/go/version"
)

var logger = logging.New("errors")

func Init() {
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN == "" {
		logger.Warn("SENTRY_DSN not set: skipping Sentry initialization!")
		return
	}

	logger.Info("Initializing Sentry")
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		AttachStacktrace: true,
		Release:          version.Version(),
	})
	if err != nil {
		logger.Warn("Failed to initialize Sentry client", zap.Error(err))
	}
}

func Middleware() func(http.Handler) http.Handler {
	handler := sentryhttp.New(sentryhttp.Options{
		Repanic: true,
	})
	return handler.Handle
}

// Report sends err to Sentry, using the hub attached to ctx by Middleware when
// there is one. It is a no-op for nil errors.
func Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
