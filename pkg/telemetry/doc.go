// Package telemetry provides observability instrumentation for the rerobots
// client: structured logging (zerolog), distributed tracing (OpenTelemetry)
// and metrics (Prometheus) behind one configuration.
//
// The CLI builds a Telemetry at startup and threads its parts into the api
// and instance packages:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	client, err := api.New(api.Config{
//	    Logger:  tel.Logger.Component("api").Zerolog(),
//	    Metrics: tel.Metrics,
//	    Tracer:  tel.Tracer,
//	})
//
// Tracing and metrics default to off; logging defaults to info-level console
// output on stderr. With the "otlp" exporter, spans go to a collector over
// gRPC; "stdout" pretty-prints them for debugging.
//
// Metrics are collected on a private registry. The CLI never exposes them
// over HTTP; programs embedding the library can mount Metrics.Handler on
// their own mux.
package telemetry
