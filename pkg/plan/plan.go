package plan

import (
	"sort"

	"github.com/fleetdns/zonekeeper/pkg/health"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

// Input is everything the computer needs for one zone. All maps are
// keyed by node address; missing entries are treated as unhealthy /
// Normal / zero users.
type Input struct {
	Zone           types.Zone
	Health         map[string]health.Verdict
	Loads          map[string]types.LoadState
	Users          map[string]int
	MinActiveNodes int
}

// Outcome is the target record set for a zone plus floor bookkeeping.
type Outcome struct {
	// Desired records, ordered by IP. Always a subset of the zone's
	// configured IPs.
	Desired []types.RecordState

	// Promoted lists throttled-but-healthy addresses pulled back in to
	// satisfy the minimum-active-nodes floor. Promotion does not touch
	// their load state.
	Promoted []string

	// FloorUnreachable is set when fewer than MinActiveNodes configured
	// addresses are healthy at all. Desired then degrades to every
	// healthy address.
	FloorUnreachable bool

	// HealthyCount is the number of healthy configured addresses.
	HealthyCount int
}

// Compute derives the target record set for a zone from health verdicts,
// load states and the configured IP set. Pure function: same inputs,
// same outcome.
func Compute(in Input) Outcome {
	var healthy, active, throttled []string
	for _, ip := range in.Zone.IPs {
		v, ok := in.Health[ip]
		if !ok || !v.Healthy {
			continue
		}
		healthy = append(healthy, ip)
		if in.Loads[ip] == types.LoadThrottled {
			throttled = append(throttled, ip)
		} else {
			active = append(active, ip)
		}
	}

	out := Outcome{HealthyCount: len(healthy)}

	switch {
	case len(healthy) < in.MinActiveNodes:
		// Floor unreachable: publish everything that is healthy and let
		// the caller escalate the shortfall.
		out.FloorUnreachable = true
		out.Desired = records(in.Zone, healthy)
		return out

	case len(active) < in.MinActiveNodes:
		// Enough healthy nodes exist, some are just throttled. Promote
		// the least loaded ones back in until the floor holds.
		sort.Slice(throttled, func(i, j int) bool {
			ui, uj := in.Users[throttled[i]], in.Users[throttled[j]]
			if ui != uj {
				return ui < uj
			}
			return throttled[i] < throttled[j]
		})
		need := in.MinActiveNodes - len(active)
		if need > len(throttled) {
			need = len(throttled)
		}
		promoted := throttled[:need]
		out.Promoted = append([]string(nil), promoted...)
		out.Desired = records(in.Zone, append(active, promoted...))
		return out

	default:
		out.Desired = records(in.Zone, active)
		return out
	}
}

func records(zone types.Zone, ips []string) []types.RecordState {
	sorted := append([]string(nil), ips...)
	sort.Strings(sorted)

	recs := make([]types.RecordState, 0, len(sorted))
	for _, ip := range sorted {
		recs = append(recs, types.RecordState{
			IP:      ip,
			TTL:     zone.TTL,
			Proxied: zone.Proxied,
		})
	}
	return recs
}
