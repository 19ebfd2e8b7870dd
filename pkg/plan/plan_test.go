package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdns/zonekeeper/pkg/health"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

func testZone(ips ...string) types.Zone {
	return types.Zone{Name: "vpn", Domain: "example.com", TTL: 120, Proxied: false, IPs: ips}
}

func healthyAll(ips ...string) map[string]health.Verdict {
	m := make(map[string]health.Verdict, len(ips))
	for _, ip := range ips {
		m[ip] = health.Verdict{Healthy: true}
	}
	return m
}

func ipsOf(recs []types.RecordState) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.IP)
	}
	return out
}

func TestAllHealthyNormal(t *testing.T) {
	out := Compute(Input{
		Zone:           testZone("10.0.0.1", "10.0.0.2"),
		Health:         healthyAll("10.0.0.1", "10.0.0.2"),
		Loads:          map[string]types.LoadState{},
		MinActiveNodes: 1,
	})

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ipsOf(out.Desired))
	assert.False(t, out.FloorUnreachable)
	assert.Empty(t, out.Promoted)
	assert.Equal(t, 2, out.HealthyCount)
}

func TestUnhealthyExcluded(t *testing.T) {
	h := healthyAll("10.0.0.2")
	h["10.0.0.1"] = health.Verdict{Healthy: false, Reason: health.ReasonDisconnected}

	out := Compute(Input{
		Zone:           testZone("10.0.0.1", "10.0.0.2"),
		Health:         h,
		MinActiveNodes: 1,
	})

	assert.Equal(t, []string{"10.0.0.2"}, ipsOf(out.Desired))
	assert.False(t, out.FloorUnreachable)
}

func TestThrottledExcluded(t *testing.T) {
	out := Compute(Input{
		Zone:   testZone("10.0.0.1", "10.0.0.2"),
		Health: healthyAll("10.0.0.1", "10.0.0.2"),
		Loads: map[string]types.LoadState{
			"10.0.0.1": types.LoadThrottled,
		},
		MinActiveNodes: 1,
	})

	assert.Equal(t, []string{"10.0.0.2"}, ipsOf(out.Desired))
	assert.Empty(t, out.Promoted)
}

func TestUnknownAddressesNeverInvented(t *testing.T) {
	// Health data for an address outside the configured set must not
	// leak into the desired records.
	h := healthyAll("10.0.0.1", "192.168.1.1")

	out := Compute(Input{
		Zone:           testZone("10.0.0.1"),
		Health:         h,
		MinActiveNodes: 1,
	})

	assert.Equal(t, []string{"10.0.0.1"}, ipsOf(out.Desired))
}

func TestFloorPromotesLeastLoaded(t *testing.T) {
	out := Compute(Input{
		Zone:   testZone("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		Health: healthyAll("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		Loads: map[string]types.LoadState{
			"10.0.0.1": types.LoadThrottled,
			"10.0.0.2": types.LoadThrottled,
		},
		Users: map[string]int{
			"10.0.0.1": 80,
			"10.0.0.2": 55,
		},
		MinActiveNodes: 2,
	})

	// 10.0.0.3 is the only active node; the floor needs one promotion
	// and 10.0.0.2 carries the lower load.
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, ipsOf(out.Desired))
	assert.Equal(t, []string{"10.0.0.2"}, out.Promoted)
	assert.False(t, out.FloorUnreachable)
}

func TestFloorPromotionTieBreaksOnAddress(t *testing.T) {
	out := Compute(Input{
		Zone:   testZone("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		Health: healthyAll("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		Loads: map[string]types.LoadState{
			"10.0.0.2": types.LoadThrottled,
			"10.0.0.3": types.LoadThrottled,
		},
		Users: map[string]int{
			"10.0.0.2": 60,
			"10.0.0.3": 60,
		},
		MinActiveNodes: 2,
	})

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ipsOf(out.Desired))
	assert.Equal(t, []string{"10.0.0.2"}, out.Promoted)
}

func TestFloorUnreachableDegradesToHealthy(t *testing.T) {
	// min-active-nodes=2 but only one node is healthy: publish that one
	// and flag the shortfall.
	h := healthyAll("10.0.0.1")
	h["10.0.0.2"] = health.Verdict{Healthy: false, Reason: health.ReasonDisconnected}

	out := Compute(Input{
		Zone:           testZone("10.0.0.1", "10.0.0.2"),
		Health:         h,
		MinActiveNodes: 2,
	})

	assert.True(t, out.FloorUnreachable)
	assert.Equal(t, []string{"10.0.0.1"}, ipsOf(out.Desired))
	assert.Equal(t, 1, out.HealthyCount)
}

func TestZeroHealthy(t *testing.T) {
	out := Compute(Input{
		Zone:           testZone("10.0.0.1", "10.0.0.2"),
		Health:         map[string]health.Verdict{},
		MinActiveNodes: 2,
	})

	assert.True(t, out.FloorUnreachable)
	assert.Empty(t, out.Desired)
	assert.Equal(t, 0, out.HealthyCount)
}

func TestFloorInvariant(t *testing.T) {
	// Property: whenever >= min nodes are healthy, the desired set holds
	// the floor regardless of how many are throttled.
	zone := testZone("10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4")
	h := healthyAll(zone.IPs...)

	for throttledCount := 0; throttledCount <= 4; throttledCount++ {
		loads := map[string]types.LoadState{}
		for i := 0; i < throttledCount; i++ {
			loads[zone.IPs[i]] = types.LoadThrottled
		}
		out := Compute(Input{Zone: zone, Health: h, Loads: loads, MinActiveNodes: 3})
		require.GreaterOrEqual(t, len(out.Desired), 3, "throttled=%d", throttledCount)
	}
}

func TestRecordsCarryZoneTTLAndProxied(t *testing.T) {
	zone := testZone("10.0.0.1")
	zone.TTL = 300
	zone.Proxied = true

	out := Compute(Input{
		Zone:           zone,
		Health:         healthyAll("10.0.0.1"),
		MinActiveNodes: 1,
	})

	require.Len(t, out.Desired, 1)
	assert.Equal(t, 300, out.Desired[0].TTL)
	assert.True(t, out.Desired[0].Proxied)
}

func TestDeterministic(t *testing.T) {
	in := Input{
		Zone:   testZone("10.0.0.3", "10.0.0.1", "10.0.0.2"),
		Health: healthyAll("10.0.0.1", "10.0.0.2", "10.0.0.3"),
		Loads: map[string]types.LoadState{
			"10.0.0.1": types.LoadThrottled,
		},
		Users:          map[string]int{"10.0.0.1": 70},
		MinActiveNodes: 1,
	}

	first := Compute(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(in))
	}
}
