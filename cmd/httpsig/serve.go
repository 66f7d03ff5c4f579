package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	reporting "github.com/fedsig/go/errors"
	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/keys"
	"github.com/fedsig/go/logging"
	"github.com/fedsig/go/telemetry"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP server that only answers correctly signed requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reporting.Init()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			resolver, cleanup, err := newResolver(v)
			if err != nil {
				return err
			}
			defer cleanup()

			if c, ok := resolver.(*keys.Cache); ok {
				if err := c.Prepare(ctx); err != nil {
					logger.Warn("failed to prepare key cache", zap.Error(err))
				}
			}

			server := &http.Server{
				Addr:              v.GetString("addr"),
				Handler:           newHandler(verifyConfig(v, resolver)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutdown failed", zap.Error(err))
				}
			}()

			logger.Info("listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return telemetry.Shutdown(shutdownCtx)
		},
	}

	addVerifyFlags(cmd)
	cmd.Flags().String("addr", ":8080", "listen address")

	return cmd
}

type verifiedResponse struct {
	KeyID     string   `json:"keyId"`
	Algorithm string   `json:"algorithm"`
	Headers   []string `json:"headers"`
}

// newHandler serves /healthz openly. Everything else requires a valid
// signature; /log/level reads or changes the log level and any other path
// describes the verified signature.
func newHandler(cfg signing.MiddlewareConfig) http.Handler {
	signed := http.NewServeMux()
	signed.HandleFunc("/log/level", logging.LevelHandler)
	signed.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		parsed, _ := signing.FromContext(r.Context())
		p := parsed.Params()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(verifiedResponse{
			KeyID:     p.KeyID,
			Algorithm: p.Algorithm,
			Headers:   p.Headers,
		})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", signing.Middleware(cfg)(signed))

	return reporting.Middleware()(otelhttp.NewHandler(mux, "httpsig"))
}
