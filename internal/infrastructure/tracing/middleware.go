package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware opens a span per request, continuing the trace named in
// the request headers. The surface uri, when present, is tagged.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithParent(c.Request.Context(),
			TraceID(c.GetHeader(TraceHeader)),
			SpanID(c.GetHeader(SpanHeader)))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		if uri := c.Query("uri"); uri != "" {
			span.SetTag("uri", uri)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}
