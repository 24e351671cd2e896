// Package incremental remembers what each destination file was extracted from
// so unchanged objects can be skipped on later runs.
//
// # Storage
//
// Records are keyed by destination path and hold the fingerprint of the
// source object that produced the file. Two backends exist:
//
//	[incremental]
//	enabled = true
//	backend = "json"    # human-readable file, written when the run ends
//	path = ".uabxautomate/state.json"
//
// The sqlite backend writes every record as it is committed and suits large
// destination trees. Both backends take an exclusive lock for writers so two
// runs cannot interleave updates; read-only stores (dry runs) take no lock and
// never create files.
//
// CLI commands for inspection and management:
//
//	uabxautomate state list
//	uabxautomate state remove <dest>
//	uabxautomate state clear
package incremental
