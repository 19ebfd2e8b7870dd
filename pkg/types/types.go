package types

import (
	"fmt"
	"time"
)

// Node is one fleet member as reported by the health API.
// Snapshots are fetched fresh each tick and never mutated.
type Node struct {
	ID           string
	Name         string
	Address      string // IPv4 address published into DNS
	Connected    bool
	Disabled     bool
	AgentVersion string // empty when the node agent is not installed
	UsersOnline  int
}

// Domain groups the DNS zones managed under one registered domain.
type Domain struct {
	Name  string
	Zones []Zone
}

// Zone is a named subdomain holding a set of A records.
type Zone struct {
	Name    string // subdomain label, e.g. "vpn"
	Domain  string // parent domain, e.g. "example.com"
	TTL     int
	Proxied bool
	IPs     []string // configured IPv4 addresses; published records are always a subset
}

// FQDN returns the fully qualified record name for the zone.
func (z Zone) FQDN() string {
	return z.Name + "." + z.Domain
}

// RecordState is one published A record as seen at the provider.
type RecordState struct {
	ID      string // provider record identifier, empty for desired records
	IP      string
	TTL     int
	Proxied bool
}

// Tuple returns the (ip, ttl, proxied) comparison key. Record IDs are
// provider bookkeeping and excluded from diffing.
func (r RecordState) Tuple() string {
	return fmt.Sprintf("%s/%d/%t", r.IP, r.TTL, r.Proxied)
}

// LoadState is the hysteresis state of one (node, zone) pair.
type LoadState string

const (
	LoadNormal    LoadState = "normal"
	LoadThrottled LoadState = "throttled"
)

// NodeLoadState is the persistent per-(node, zone) load record.
// It is the only engine state that survives across ticks.
type NodeLoadState struct {
	NodeAddress    string
	Zone           string
	State          LoadState
	LastTransition time.Time
}

// LoadSample is one load observation for a node.
type LoadSample struct {
	NodeAddress string
	UserCount   int
	Timestamp   time.Time
}

// EngineState tracks the driver loop lifecycle.
type EngineState string

const (
	EngineIdle    EngineState = "idle"
	EngineRunning EngineState = "running"
	EngineStopped EngineState = "stopped"
)
