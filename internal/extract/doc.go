// Package extract runs the extraction pipeline.
//
// Run expands the source pattern into input files and hands them, in sorted
// order, to a bounded pool of workers. Each worker processes one file at a
// time: the container is parsed, every object is matched against the rules,
// and each resulting job is templated, gated, decoded and written. Failures
// below the file level are collected into the Report instead of stopping the
// run.
//
// Dry runs execute every stage except the file write and the incremental
// store update, and produce the same Report a real run would.
package extract
