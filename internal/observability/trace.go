package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/a3tai/facturx-bridge"

// Tracer returns the bridge tracer from the global provider. It is looked up
// on every call so a provider installed after startup takes effect.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
