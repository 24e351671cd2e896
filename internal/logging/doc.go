// Package logging assembles structured slog loggers and formatting helpers
// used across uabxautomate.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so extraction code can tag log
// lines with the run identifier and the bundle being processed. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Console output goes to stderr so command output on stdout stays parseable.
// When a log file is configured, every record is also written there as JSON.
package logging
