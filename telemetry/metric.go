package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fedsig/go/version"
)

// Meter fetches a meter, applying a standard naming convention for use across
// services. Instruments are no-ops until the host installs a MeterProvider.
func Meter(service string, component string, opts ...metric.MeterOption) metric.Meter {
	name := fmt.Sprintf("fedsig/%s/%s", service, component)
	opts = append(opts, metric.WithInstrumentationVersion(version.Version()))
	return otel.Meter(name, opts...)
}
