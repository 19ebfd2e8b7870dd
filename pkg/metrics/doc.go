// Package metrics exposes prometheus instrumentation for the engine:
// tick counters and durations, fleet health gauges and DNS operation
// counters.
package metrics
