// Package middleware provides the gin middleware stack of the bridge.
//
//   - RequestID: reuses or assigns X-Request-ID
//   - AccessLog: one zap line per request
//   - Recovery: panic to JSON 500, e.g. a tree invariant violation
//   - CORS: cross-origin access for browser hosts
//   - RateLimit: per-IP token buckets with idle eviction
//   - Gzip: klauspost gzip for JSON and HTML responses
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
