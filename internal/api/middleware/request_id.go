package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/ozanardine/phanteon-rewards/pkg/telemetry/correlation"
)

const HeaderRequestID = "X-Request-ID"

// RequestID assigns every request a correlation id, reusing the caller's X-Request-ID
// when acceptable, and adopts an incoming W3C trace context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, id := correlation.FromIncoming(c.Request.Context(), c.GetHeader(HeaderRequestID))
		ctx = correlation.ContextWithTraceParent(ctx, c.GetHeader("traceparent"))

		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
