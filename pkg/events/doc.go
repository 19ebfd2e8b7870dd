// Package events defines the structured notifications the engine emits
// and an in-memory broker that fans them out to subscribers. Delivery is
// fire-and-forget: publishing never blocks and a full subscriber buffer
// drops rather than stalling the reconciliation pipeline.
package events
