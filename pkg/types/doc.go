// Package types holds the shared data model: fleet nodes, DNS zones and
// record states, and the per-(node, zone) load bookkeeping. All types are
// plain values; nothing here performs I/O.
package types
