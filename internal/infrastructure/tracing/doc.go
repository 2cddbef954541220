/*
Package tracing provides lightweight request tracing.

Every HTTP request gets a span. A caller that sends X-Trace-ID and
X-Span-ID continues its own trace; otherwise a new trace starts. Both ids
are echoed in the response headers. Handlers open child spans from the
request context for work worth timing on its own, such as script runs.

Finished spans are buffered and written to the log by one collector
goroutine, so submitting never blocks a request.

	tracer := tracing.New("remotedom", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "script.execute")
	defer tracer.Submit(span)
*/
package tracing
