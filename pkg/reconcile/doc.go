/*
Package reconcile diffs desired DNS state against the provider's actual
records and applies the minimal operation set to converge them.

Records are compared as full (ip, ttl, proxied) tuples: an IP present on
both sides with a drifted ttl or proxied flag becomes an update, so
configuration-only changes are driven through. Additions and updates are
applied before removals, biasing convergence toward transient
over-provisioning instead of under-provisioning. Each operation stands
alone; a failure is collected and reported but never cancels sibling
operations or other zones.
*/
package reconcile
