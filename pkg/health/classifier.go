package health

import (
	"github.com/fleetdns/zonekeeper/pkg/types"
)

// Reason explains why a node was classified unhealthy.
type Reason string

const (
	ReasonDisconnected      Reason = "disconnected"
	ReasonDisabled          Reason = "disabled"
	ReasonAgentNotInstalled Reason = "agent-not-installed"
)

// Verdict is the health classification of a single node snapshot.
type Verdict struct {
	Healthy bool
	Reason  Reason // first failing condition, empty when healthy
}

// Classify maps a node snapshot to a health verdict. A node is healthy
// iff it is connected, not disabled, and has an agent version reported.
// Conditions are evaluated in that priority order and the reason is the
// first one that fails.
func Classify(node types.Node) Verdict {
	if !node.Connected {
		return Verdict{Healthy: false, Reason: ReasonDisconnected}
	}
	if node.Disabled {
		return Verdict{Healthy: false, Reason: ReasonDisabled}
	}
	if node.AgentVersion == "" {
		return Verdict{Healthy: false, Reason: ReasonAgentNotInstalled}
	}
	return Verdict{Healthy: true}
}

// ClassifyAll classifies a fleet snapshot, keyed by node address.
// Inputs are immutable per-node values, so callers may shard this
// across goroutines; the plain loop is fast enough for fleet sizes
// this engine targets.
func ClassifyAll(nodes []types.Node) map[string]Verdict {
	verdicts := make(map[string]Verdict, len(nodes))
	for _, n := range nodes {
		verdicts[n.Address] = Classify(n)
	}
	return verdicts
}

// Stats summarizes a fleet snapshot for notifications.
type Stats struct {
	Total    int
	Online   int
	Disabled int
}

// Summarize counts fleet-wide health for event payloads.
func Summarize(nodes []types.Node) Stats {
	s := Stats{Total: len(nodes)}
	for _, n := range nodes {
		if Classify(n).Healthy {
			s.Online++
		}
		if n.Disabled {
			s.Disabled++
		}
	}
	return s
}
