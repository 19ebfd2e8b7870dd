package load

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdns/zonekeeper/pkg/types"
)

func sample(addr string, users int) types.LoadSample {
	return types.LoadSample{NodeAddress: addr, UserCount: users, Timestamp: time.Now()}
}

func TestHysteresisCycle(t *testing.T) {
	// max=50, recover=30: 49 -> no change, 51 -> throttled,
	// 40 -> dead zone, 29 -> restored
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 50, RecoverUsers: 30})

	assert.Nil(t, tr.Observe("vpn.example.com", sample("10.0.0.1", 49)))
	assert.Equal(t, types.LoadNormal, tr.State("vpn.example.com", "10.0.0.1"))

	tx := tr.Observe("vpn.example.com", sample("10.0.0.1", 51))
	require.NotNil(t, tx)
	assert.Equal(t, types.LoadNormal, tx.From)
	assert.Equal(t, types.LoadThrottled, tx.To)
	assert.Equal(t, 51, tx.UserCount)
	assert.Equal(t, 50, tx.Threshold)

	// Dead zone: strictly between recover and max keeps the node throttled
	assert.Nil(t, tr.Observe("vpn.example.com", sample("10.0.0.1", 40)))
	assert.Equal(t, types.LoadThrottled, tr.State("vpn.example.com", "10.0.0.1"))

	tx = tr.Observe("vpn.example.com", sample("10.0.0.1", 29))
	require.NotNil(t, tx)
	assert.Equal(t, types.LoadThrottled, tx.From)
	assert.Equal(t, types.LoadNormal, tx.To)
	assert.Equal(t, 30, tx.Threshold)
}

func TestThresholdBoundaries(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 50, RecoverUsers: 30})

	// Exactly max throttles
	tx := tr.Observe("z", sample("10.0.0.1", 50))
	require.NotNil(t, tx)
	assert.Equal(t, types.LoadThrottled, tx.To)

	// Dropping just below max does not recover
	assert.Nil(t, tr.Observe("z", sample("10.0.0.1", 49)))
	assert.Equal(t, types.LoadThrottled, tr.State("z", "10.0.0.1"))

	// Just above recover still does not recover
	assert.Nil(t, tr.Observe("z", sample("10.0.0.1", 31)))
	assert.Equal(t, types.LoadThrottled, tr.State("z", "10.0.0.1"))

	// Exactly recover restores
	tx = tr.Observe("z", sample("10.0.0.1", 30))
	require.NotNil(t, tx)
	assert.Equal(t, types.LoadNormal, tx.To)
}

func TestDisabledBypassesTracking(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: false, MaxUsers: 50, RecoverUsers: 30})

	assert.Nil(t, tr.Observe("z", sample("10.0.0.1", 1000)))
	assert.Equal(t, types.LoadNormal, tr.State("z", "10.0.0.1"))
	assert.Empty(t, tr.Snapshot())
}

func TestStatesIndependentPerZone(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 50, RecoverUsers: 30})

	tr.Observe("a.example.com", sample("10.0.0.1", 60))
	assert.Equal(t, types.LoadThrottled, tr.State("a.example.com", "10.0.0.1"))
	assert.Equal(t, types.LoadNormal, tr.State("b.example.com", "10.0.0.1"))
}

func TestForget(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 50, RecoverUsers: 30})

	tr.Observe("a.example.com", sample("10.0.0.1", 60))
	tr.Observe("b.example.com", sample("10.0.0.1", 60))
	tr.Observe("a.example.com", sample("10.0.0.2", 60))

	tr.Forget("10.0.0.1")

	assert.Equal(t, types.LoadNormal, tr.State("a.example.com", "10.0.0.1"))
	assert.Equal(t, types.LoadThrottled, tr.State("a.example.com", "10.0.0.2"))
	require.Len(t, tr.Snapshot(), 1)
}

func TestZoneStates(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 50, RecoverUsers: 30})
	tr.Observe("z", sample("10.0.0.2", 60))

	states := tr.ZoneStates("z", []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, types.LoadNormal, states["10.0.0.1"])
	assert.Equal(t, types.LoadThrottled, states["10.0.0.2"])
}

func TestSnapshotOrdering(t *testing.T) {
	tr := NewTracker(Thresholds{Enabled: true, MaxUsers: 10, RecoverUsers: 5})
	tr.Observe("b", sample("10.0.0.2", 20))
	tr.Observe("a", sample("10.0.0.9", 20))
	tr.Observe("a", sample("10.0.0.1", 20))

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].Zone)
	assert.Equal(t, "10.0.0.1", snap[0].NodeAddress)
	assert.Equal(t, "10.0.0.9", snap[1].NodeAddress)
	assert.Equal(t, "b", snap[2].Zone)
	assert.False(t, snap[0].LastTransition.IsZero())
}
