package load

import (
	"sort"
	"time"

	"github.com/fleetdns/zonekeeper/pkg/types"
)

// Thresholds carries the hysteresis configuration. MaxUsers must be
// >= RecoverUsers; config validation enforces this before a Tracker
// is ever built.
type Thresholds struct {
	Enabled      bool
	MaxUsers     int
	RecoverUsers int
}

// Transition reports one hysteresis edge taken during Observe.
type Transition struct {
	NodeAddress string
	Zone        string
	From        types.LoadState
	To          types.LoadState
	UserCount   int
	Threshold   int // the threshold that triggered the edge
}

type stateKey struct {
	address string
	zone    string
}

// Tracker owns the per-(node, zone) load state machine. It is the only
// cross-tick mutable state in the engine and is driven exclusively by
// the single tick loop, so it carries no locking of its own.
type Tracker struct {
	thresholds Thresholds
	states     map[stateKey]*types.NodeLoadState
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(thresholds Thresholds) *Tracker {
	return &Tracker{
		thresholds: thresholds,
		states:     make(map[stateKey]*types.NodeLoadState),
	}
}

// SetThresholds swaps the thresholds after a config reload. Existing
// states are kept; the new edges apply from the next Observe.
func (t *Tracker) SetThresholds(thresholds Thresholds) {
	t.thresholds = thresholds
}

// Observe feeds one load sample for a zone through the state machine.
// The two edges are: Normal -> Throttled when userCount >= MaxUsers,
// and Throttled -> Normal when userCount <= RecoverUsers. Values
// strictly between the thresholds sit in the dead zone and cause no
// transition. Returns the transition taken, or nil.
func (t *Tracker) Observe(zone string, sample types.LoadSample) *Transition {
	if !t.thresholds.Enabled {
		return nil
	}

	key := stateKey{address: sample.NodeAddress, zone: zone}
	st, ok := t.states[key]
	if !ok {
		st = &types.NodeLoadState{
			NodeAddress: sample.NodeAddress,
			Zone:        zone,
			State:       types.LoadNormal,
		}
		t.states[key] = st
	}

	switch st.State {
	case types.LoadNormal:
		if sample.UserCount >= t.thresholds.MaxUsers {
			st.State = types.LoadThrottled
			st.LastTransition = timestamp(sample)
			return &Transition{
				NodeAddress: sample.NodeAddress,
				Zone:        zone,
				From:        types.LoadNormal,
				To:          types.LoadThrottled,
				UserCount:   sample.UserCount,
				Threshold:   t.thresholds.MaxUsers,
			}
		}
	case types.LoadThrottled:
		if sample.UserCount <= t.thresholds.RecoverUsers {
			st.State = types.LoadNormal
			st.LastTransition = timestamp(sample)
			return &Transition{
				NodeAddress: sample.NodeAddress,
				Zone:        zone,
				From:        types.LoadThrottled,
				To:          types.LoadNormal,
				UserCount:   sample.UserCount,
				Threshold:   t.thresholds.RecoverUsers,
			}
		}
	}

	return nil
}

// State returns the current load state for a (node, zone) pair.
// Untracked pairs and disabled load balancing report Normal.
func (t *Tracker) State(zone, address string) types.LoadState {
	if !t.thresholds.Enabled {
		return types.LoadNormal
	}
	if st, ok := t.states[stateKey{address: address, zone: zone}]; ok {
		return st.State
	}
	return types.LoadNormal
}

// ZoneStates returns the load state of every configured address in a
// zone, keyed by address.
func (t *Tracker) ZoneStates(zone string, addresses []string) map[string]types.LoadState {
	states := make(map[string]types.LoadState, len(addresses))
	for _, addr := range addresses {
		states[addr] = t.State(zone, addr)
	}
	return states
}

// Snapshot returns a stable copy of all tracked states, ordered by
// zone then address.
func (t *Tracker) Snapshot() []types.NodeLoadState {
	out := make([]types.NodeLoadState, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Zone != out[j].Zone {
			return out[i].Zone < out[j].Zone
		}
		return out[i].NodeAddress < out[j].NodeAddress
	})
	return out
}

// Forget drops all state for a node address, for nodes that left the
// fleet or the configured IP set.
func (t *Tracker) Forget(address string) {
	for key := range t.states {
		if key.address == address {
			delete(t.states, key)
		}
	}
}

func timestamp(sample types.LoadSample) time.Time {
	if !sample.Timestamp.IsZero() {
		return sample.Timestamp
	}
	return time.Now()
}
