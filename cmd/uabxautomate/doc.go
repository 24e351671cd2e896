// Package main hosts the uabxautomate CLI entrypoint and command graph.
//
// The Cobra-based command tree loads the TOML configuration, runs
// extractions, inspects containers, and manages the incremental state. It
// centralizes configuration resolution and structured logging setup so
// subcommands can focus on presenting results.
//
// Keep this package lean: new behaviour belongs in the internal packages
// first and is surfaced here through dedicated commands or flags.
package main
