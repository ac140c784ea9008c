package observe

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// correlationHeader carries the trace ID back to the caller so log lines on
// both sides can be matched up.
const correlationHeader = "X-Correlation-ID"

// Middleware returns an echo middleware that wraps every request in an OTel
// server span, continuing a W3C trace context when the caller sent one. It
// stamps the trace ID into the X-Correlation-ID response header, records the
// request latency to [Metrics.HTTPRequestDuration], and logs completion with
// the final status code.
func Middleware(m *Metrics) echo.MiddlewareFunc {
	prop := propagation.TraceContext{}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			ctx := prop.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := StartSpan(ctx, "HTTP "+req.Method+" "+req.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(req.Method),
					semconv.URLPath(req.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				c.Response().Header().Set(correlationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(c.Response().Header()))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			if err != nil {
				// The error handler has not run yet; report what it will send.
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", req.Method),
					attribute.String("path", req.URL.Path),
				),
			)

			slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("trace_id", CorrelationID(ctx)),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", elapsed),
			)
			return err
		}
	}
}
