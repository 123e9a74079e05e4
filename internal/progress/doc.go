// Package progress carries run events from the pipeline to observers. A non-blocking Hub
// batches events on a background goroutine and fans them out to sinks: structured logs,
// Prometheus counters, or the NDJSON stream of a triggered run.
package progress
