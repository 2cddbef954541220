// Package main is the entry point for the remote DOM bridge server.
//
// The server keeps one element tree per surface URI, batches the changes
// made to it and streams them to hosts over a websocket. Scripts and HTML
// fragments drive surfaces over HTTP.
//
// Architecture:
//
//	HTTP (scripts, HTML, calls) → Surface registry → Hub → WebSocket hosts
//	                                               → Webhook sink
//	                                               → Redis tap
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server serve --port 8000
//
//	# Development mode (colored logs, debug level) with seed surfaces
//	./server serve --dev --seed-dir ./seeds
//
//	# Check seed documents without starting the server
//	./server seeds validate ./seeds
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
