// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output with stack traces
//
// Components receive a *zap.Logger derived with Component or Surface and
// log with structured fields:
//
//	logger := logging.NewDefault()
//	hubLog := logger.Component("hub")
//	hubLog.Warn("Dropping slow websocket client", zap.String("uri", uri))
package logging
