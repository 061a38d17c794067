package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the request's trace ID back to the caller.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests that no mux pattern matched.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the status server. Wrap the [http.ServeMux] itself
// so the matched pattern is known after dispatch.
//
// Each request gets a server span named after its route, the
// [CorrelationHeader], one [Metrics.HTTPRequestDuration] sample labelled with
// route and status code, and a log record. Routes are mux patterns such as
// "GET /readyz", never raw paths. Probes poll continuously, so only server
// errors log above debug. A 503 is the readiness answer "not yet", not a
// server error.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := StartSpan(r.Context(), "status "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			span.SetName("status " + route)
			span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(rec.status))
			failed := serverError(rec.status)
			if failed {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}

			d := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
				Attr("route", route),
				attribute.Int("status", rec.status),
			))

			level := slog.LevelDebug
			if failed {
				level = slog.LevelWarn
			}
			Logger(ctx).LogAttrs(ctx, level, "status request",
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", d),
			)
		})
	}
}

func serverError(status int) bool {
	return status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable
}
