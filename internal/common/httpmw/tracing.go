package httpmw

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/tracing"
)

// OtelTracing wraps each API request in a span named "<METHOD> <route>". Task and
// report ids from the route are recorded as attributes. A no-op when tracing is off.
func OtelTracing(serverName string) gin.HandlerFunc {
	tracer := tracing.Tracer(serverName)

	return func(c *gin.Context) {
		route := routeOf(c)
		if probePaths[route] {
			c.Next()
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, route))
		defer span.End()

		if id, ok := ctx.Value(logger.RequestIDKey).(string); ok {
			span.SetAttributes(attribute.String("request_id", id))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(c.Writer.Status()),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attribute.String("resource_id", id))
		}
		span.SetAttributes(attrs...)

		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
