package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/fedsig/go/version"
)

var (
	defaultResource     *resource.Resource
	defaultResourceOnce sync.Once
)

// DefaultResource describes this process: OTEL_RESOURCE_ATTRIBUTES and
// OTEL_SERVICE_NAME, the host and the build version.
func DefaultResource() *resource.Resource {
	defaultResourceOnce.Do(func() {
		var err error
		defaultResource, err = resource.New(
			context.Background(),
			resource.WithSchemaURL(semconv.SchemaURL),
			resource.WithFromEnv(),
			resource.WithTelemetrySDK(),
			resource.WithHost(),
			resource.WithAttributes(semconv.ServiceVersionKey.String(version.Version())),
		)
		switch {
		case errors.Is(err, resource.ErrPartialResource):
			// ignored
		case err != nil:
			otel.Handle(err)
		}
		if defaultResource == nil {
			defaultResource = resource.Default()
		}
	})
	return defaultResource
}
