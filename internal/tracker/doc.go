// Package tracker owns the lifecycle of runs. Start launches each run on its
// own goroutine, Stop halts it before its next node, and finished runs are
// kept in a bounded history so their logs stay retrievable.
//
// Run and node activity is reported twice: as lifecycle events on the
// configured events.Emitter, and as OpenTelemetry metrics on the configured
// meter provider (the global one by default).
package tracker
