// Package config loads, normalizes, and validates uabxautomate configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// the TOML file, and compiles every extraction target once so invalid
// patterns and capture references are reported before any input is opened.
// Relative paths resolve against the working directory, or against the
// config file's directory when loaded with WithConfigRelativePaths.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical backend and log format names, and clear
// validation errors.
package config
