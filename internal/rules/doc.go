// Package rules turns configured extraction targets into jobs.
//
// A target selects objects by type, builds an identifier string from an
// identifier template, and matches it against a regular expression. Capture
// groups from a successful match feed the destination template:
//
//	[[targets]]
//	type = "texture2d"
//	template = "{container}#{name}"
//	match = '^.+/spines/([^/]+)/[^#]+#(.+)$'
//	dest = "$1/$2.png"
//
// Rules are evaluated in declaration order and every matching rule yields its
// own job; two rules that render the same destination both write it and the
// later one wins.
//
// Rendered destinations are relative to the destination root. Resolve rejects
// anything that would leave that root.
package rules
