/*
Package observability turns runner lifecycle hooks into logs, Prometheus
metrics and OpenTelemetry traces.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := domain.MergeHooks(observability.LoggingHooks(logger), metrics.Hooks())
	r := runner.New(sessions, runner.WithHooks(hooks))

Spans are opened by the runner and the agents through the global tracer
provider; InitTracer installs an OTLP exporter behind it.
*/
package observability
