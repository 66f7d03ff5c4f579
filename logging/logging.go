// Package logging configures zap for every package in the module.
//
// LOG_LEVEL sets the initial level ("warning" is accepted for "warn") and
// LOG_FORMAT=development switches from JSON on stdout to colored console
// output on stderr.
package logging

import (
	"context"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseConfig = NewConfig()
	baseLogger = zap.Must(baseConfig.Build())
)

type contextKey int

const contextFieldsKey contextKey = iota

func NewConfig() zap.Config {
	config := newProductionConfig()
	if os.Getenv("LOG_FORMAT") == "development" {
		config = newDevelopmentConfig()
	}

	if level, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if lvl, err := parseLevel(level); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	return config
}

func parseLevel(level string) (zapcore.Level, error) {
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	return zapcore.ParseLevel(level)
}

func newDevelopmentConfig() zap.Config {
	encoderConfig := newEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.NameKey = ""

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:       true,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stderr"},
	}
}

func newProductionConfig() zap.Config {
	return zap.Config{
		Level: zap.NewAtomicLevelAt(zap.InfoLevel),
		// Rejected signatures are logged at Info, and a misconfigured peer
		// can produce a lot of them.
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:      "json",
		EncoderConfig: newEncoderConfig(),
		OutputPaths:   []string{"stdout"},
	}
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New returns a logger named after the package or component using it.
func New(name string) *zap.Logger {
	return baseLogger.Named(name)
}

// GetFields returns the fields attached to ctx by AddFields.
func GetFields(ctx context.Context) []zap.Field {
	f, _ := ctx.Value(contextFieldsKey).([]zap.Field)
	return f
}

// AddFields returns a context carrying fields in addition to any already
// attached, for loggers further down the call chain.
func AddFields(ctx context.Context, fields ...zap.Field) context.Context {
	f := append([]zap.Field{}, GetFields(ctx)...)
	return context.WithValue(ctx, contextFieldsKey, append(f, fields...))
}

// SetLevel changes the level of every logger created by New. It accepts the
// same names as LOG_LEVEL.
func SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	baseConfig.Level.SetLevel(lvl)
	return nil
}

// LevelHandler reports the current level on GET and changes it on PUT, using
// zap's JSON format: {"level":"debug"}.
func LevelHandler(w http.ResponseWriter, r *http.Request) {
	baseConfig.Level.ServeHTTP(w, r)
}
