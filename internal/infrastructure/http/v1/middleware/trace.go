package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ledgercore/internal/core/reqctx"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace populates request identifiers before authentication. The trace slot
// is readable through reqctx.RequestID even for requests that never reach
// the context middleware.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := reqctx.WithTrace(c.Request.Context(), &reqctx.Trace{
			RequestID: requestID,
			TraceID:   traceID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
