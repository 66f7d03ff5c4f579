// Package telemetry configures OpenTelemetry for signing services. Importing
// it installs a zap-backed otel logger and an error handler that reports to
// Sentry, and, when OTEL_EXPORTER_OTLP_ENDPOINT is set, an OTLP/HTTP tracer
// provider.
package telemetry

import (
	"context"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fedsig/go/logging"
)

var logger = logging.New("telemetry")

func init() {
	otel.SetLogger(logr.New(&logSink{logger: logger}))
	otel.SetErrorHandler(ErrorHandler{})

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		logger.Warn("traces will not be exported via OTLP (OTEL_EXPORTER_OTLP_ENDPOINT is not set)")
		return
	}

	configureTracerProvider()
}

func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*trace.TracerProvider); ok && tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

// ErrorHandler logs otel's internal errors and forwards them to Sentry.
type ErrorHandler struct{}

func (ErrorHandler) Handle(err error) {
	// +1 for this wrapper, +3 for opentelemetry-go's internal error handling code
	logger.WithOptions(zap.AddCallerSkip(4)).Warn("opentelemetry error", zap.Error(err))
	sentry.CaptureException(err)
}

// logSink adapts zap to the logr interface otel logs through.
type logSink struct {
	logger *zap.Logger
}

func (s *logSink) Init(info logr.RuntimeInfo) {
	// +1 for this sink, +1 for otel's internal logging helper
	s.logger = s.logger.WithOptions(zap.AddCallerSkip(info.CallDepth + 2))
}

func (s *logSink) Enabled(level int) bool {
	return s.logger.Core().Enabled(otelLevel(level))
}

func (s *logSink) Info(level int, msg string, keysAndValues ...any) {
	sugar := s.logger.Sugar()
	switch otelLevel(level) {
	case zapcore.WarnLevel:
		sugar.Warnw(msg, keysAndValues...)
	case zapcore.InfoLevel:
		sugar.Infow(msg, keysAndValues...)
	default:
		sugar.Debugw(msg, keysAndValues...)
	}
}

func (s *logSink) Error(err error, msg string, keysAndValues ...any) {
	s.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

func (s *logSink) WithValues(keysAndValues ...any) logr.LogSink {
	return &logSink{logger: s.logger.Sugar().With(keysAndValues...).Desugar()}
}

func (s *logSink) WithName(name string) logr.LogSink {
	return &logSink{logger: s.logger.Named(name)}
}

// otelLevel maps otel's verbosity levels (1 warn, 4 info, 8 debug) to zap.
func otelLevel(level int) zapcore.Level {
	switch {
	case level <= 1:
		return zapcore.WarnLevel
	case level <= 4:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
