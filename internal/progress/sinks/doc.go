// Package sinks implements progress consumers: structured logging, Prometheus counters and a
// channel feeding streamed run output.
package sinks
