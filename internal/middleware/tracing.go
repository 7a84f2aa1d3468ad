package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// tracingProvider overrides the global tracer provider when set.
var tracingProvider trace.TracerProvider

// Tracing starts a server span per request. The span is renamed to the chi
// route pattern once routing has resolved it.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + rctx.RoutePattern())
			}
		})
		opts := []otelhttp.Option{
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "HTTP " + r.Method
			}),
		}
		if tracingProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(tracingProvider))
		}
		return otelhttp.NewHandler(named, service, opts...)
	}
}
