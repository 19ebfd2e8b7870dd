// Package plan computes the desired DNS record set per zone: the healthy,
// non-throttled subset of the configured IPs, with throttled nodes
// promoted back in when needed to hold the minimum-active-nodes floor.
// The computation is a pure function of its inputs.
package plan
