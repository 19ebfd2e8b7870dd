// Package log wraps zerolog with a process-global logger and helpers for
// component-scoped child loggers.
package log
