// Package observe instruments the OCR and LLM boundaries and page tasks with
// OpenTelemetry. Without Setup the global providers are no-ops.
package observe

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationName = "github.com/joseph-ayodele/survey-extractor"

var EnableTelemetry = false

func init() {
	EnableTelemetry = os.Getenv("TELEMETRY") != ""
}

// Setup installs OTLP exporters for traces, metrics and logs. The exporter
// protocol follows OTEL_EXPORTER_OTLP_PROTOCOL. The returned func flushes
// and stops the providers.
func Setup(ctx context.Context, service string) (func(context.Context) error, error) {
	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewSchemaless(attribute.String("service.name", service)),
	)
	if err != nil {
		return nil, err
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	for _, setup := range []func(context.Context, *sdkresource.Resource) (func(context.Context) error, error){
		setupTracer, setupMeter, setupLogger,
	} {
		fn, err := setup(ctx, resource)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdowns = append(shutdowns, fn)
	}
	return shutdown, nil
}
