// Package fleet is the client for the node health API. It returns fresh
// fleet snapshots; nothing here is cached between ticks.
package fleet
