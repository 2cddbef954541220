/*
Package monitoring provides Prometheus metrics for the bridge.

Metrics live on a private registry so tests can create as many collectors
as they like. A single *Metrics satisfies the recorder interfaces of the
surface batcher and the websocket hub, and its SurfacesActive gauge is kept
current by the environment registry.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	reg := environment.NewRegistry(
		environment.WithGauge(metrics.Surfaces()),
		environment.WithSurfaceOptions(surface.WithRecorder(metrics)),
	)
*/
package monitoring
