/*
Package observability turns supervisor lifecycle hooks into signals an operator
can watch: Prometheus metrics and structured log lines.

Both are plain domain.LifecycleHooks, so they compose with domain.Combine:

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hooks := domain.Combine(metrics.Hooks(), observability.LoggingHooks(logger))
	sup := supervisor.New(
		supervisor.WithLifecycleHooks(hooks),
		supervisor.WithByteCounter(metrics.CountBytes),
	)
*/
package observability
