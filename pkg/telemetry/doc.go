// Package telemetry provides observability instrumentation for the bridge and
// the decision engine behind it.
//
// The package combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at process startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Embedders that host the bridge inside a foreign runtime usually keep logs
// quiet and expose metrics only:
//
//	tel := telemetry.NewNopTelemetry()
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("bridge")
//	logger.WithEntryPoint("authorize").WithInstance(7).Debug("call started")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// The bridge never reports failures through the log. Failures reach the caller
// as foreign exceptions; the log only carries debug breadcrumbs.
//
// # Distributed Tracing
//
// Every entry point call runs as one operation with its own span, timer and
// trace-tagged logger:
//
//	op := telemetry.StartOperation(tel.WithContext(ctx), "bridge.authorize")
//	err := call(op.Ctx)
//	op.End(err)
//
// The engine adds a child span per authorization. Exporters: otlp (gRPC),
// stdout and none.
//
// # Metrics
//
// Available metrics, all prefixed with the configured namespace:
//
//   - bridge_calls_total{entry_point, outcome}
//   - bridge_call_duration_seconds{entry_point}
//   - bridge_failures_total{entry_point, class}
//   - cached_handles{cache, kind}
//   - live_instances
//   - decisions_total{kind, decision}
//   - decision_log_entries_total{sink, outcome}
//   - policy_store_reloads_total{status}
//
// Error classes used as labels: boundary, cache_miss, domain, engine, instance.
package telemetry
