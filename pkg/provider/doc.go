// Package provider abstracts the external DNS API behind a narrow
// interface and implements it for Cloudflare. Every call carries a
// bounded timeout and retry-with-backoff at this layer; a call that
// exhausts its retries surfaces as a single failed operation to the
// reconciler.
package provider
