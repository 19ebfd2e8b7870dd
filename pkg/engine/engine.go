package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetdns/zonekeeper/pkg/config"
	"github.com/fleetdns/zonekeeper/pkg/events"
	"github.com/fleetdns/zonekeeper/pkg/health"
	"github.com/fleetdns/zonekeeper/pkg/load"
	"github.com/fleetdns/zonekeeper/pkg/log"
	"github.com/fleetdns/zonekeeper/pkg/metrics"
	"github.com/fleetdns/zonekeeper/pkg/plan"
	"github.com/fleetdns/zonekeeper/pkg/provider"
	"github.com/fleetdns/zonekeeper/pkg/reconcile"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

// FleetSource supplies fleet snapshots, one per tick.
type FleetSource interface {
	Nodes(ctx context.Context) ([]types.Node, error)
}

// Reloader re-reads configuration. Called at most once per tick; an
// error keeps the previous configuration in force.
type Reloader func() (*config.Config, error)

// Options wires an engine together.
type Options struct {
	Config   *config.Config
	Fleet    FleetSource
	Provider provider.Provider
	Notifier events.Notifier
	Reloader Reloader // optional
}

// Engine drives the fetch -> classify -> compute -> reconcile -> notify
// pipeline on a fixed interval. It owns all cross-tick state: the load
// tracker, previous health map, all-down flag and the zone-ID cache.
type Engine struct {
	mu    sync.RWMutex
	state types.EngineState

	cfg        *config.Config
	fleet      FleetSource
	provider   provider.Provider
	reconciler *reconcile.Reconciler
	notifier   events.Notifier
	reload     Reloader
	tracker    *load.Tracker

	zoneIDs     map[string]string // domain -> provider zone id, process lifetime
	prevHealthy map[string]bool   // address -> healthy, for transition edges
	prevAllDown bool

	logger zerolog.Logger
}

// New creates an engine. Options.Config must already be validated.
func New(opts Options) *Engine {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	lb := opts.Config.LoadBalancing
	return &Engine{
		state:    types.EngineIdle,
		cfg:      opts.Config,
		fleet:    opts.Fleet,
		provider: opts.Provider,
		notifier: notifier,
		reload:   opts.Reloader,
		reconciler: reconcile.New(opts.Provider, notifier),
		tracker: load.NewTracker(load.Thresholds{
			Enabled:      lb.Enabled,
			MaxUsers:     lb.MaxUsersPerNode,
			RecoverUsers: lb.RecoverUsersPerNode,
		}),
		zoneIDs:     make(map[string]string),
		prevHealthy: make(map[string]bool),
		logger:      log.WithComponent("engine"),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s types.EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes the tick loop until ctx is cancelled. The first tick
// fires immediately; subsequent ticks follow the configured interval.
// A tick in flight always finishes before Run returns: two overlapping
// ticks would race their diffs against the same provider state.
func (e *Engine) Run(ctx context.Context) error {
	e.notifier.Accept(events.New(events.EventServiceStarted, nil))
	e.logger.Info().Dur("interval", e.cfg.Interval()).Msg("engine started")

	defer func() {
		e.setState(types.EngineStopped)
		e.notifier.Accept(events.New(events.EventServiceStopped, nil))
		e.logger.Info().Msg("engine stopped")
	}()

	ticker := time.NewTicker(e.cfg.Interval())
	defer ticker.Stop()

	for {
		e.runTick(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.setState(types.EngineRunning)
	defer e.setState(types.EngineIdle)

	if err := e.Tick(ctx); err != nil {
		e.logger.Error().Err(err).Msg("tick failed")
	}
}

// Tick executes one full pipeline pass. A fetch failure aborts the
// pass; failures further down are scoped to their node, record or zone.
func (e *Engine) Tick(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	e.maybeReload()
	zones := e.cfg.Zones()
	configured := configuredAddresses(zones)

	nodes, err := e.fleet.Nodes(ctx)
	if err != nil {
		metrics.FetchFailuresTotal.Inc()
		return fmt.Errorf("fleet snapshot failed, skipping tick: %w", err)
	}

	fleetNodes := filterConfigured(nodes, configured)
	verdicts := health.ClassifyAll(fleetNodes)
	stats := health.Summarize(fleetNodes)

	metrics.NodesTotal.Set(float64(stats.Total))
	metrics.NodesHealthy.Set(float64(stats.Online))

	e.logger.Info().
		Int("total", stats.Total).
		Int("online", stats.Online).
		Int("disabled", stats.Disabled).
		Msg("fleet snapshot classified")

	e.emitHealthTransitions(fleetNodes, verdicts, stats)
	e.emitAllDown(fleetNodes, verdicts)
	e.observeLoad(zones, fleetNodes)
	e.pruneDeparted(fleetNodes)

	users := make(map[string]int, len(fleetNodes))
	names := make(map[string]string, len(fleetNodes))
	for _, n := range fleetNodes {
		users[n.Address] = n.UsersOnline
		names[n.Address] = n.Name
	}

	targets := e.buildTargets(ctx, zones, verdicts, users)
	if len(targets) == 0 {
		return nil
	}

	results, err := e.reconciler.ReconcileAll(ctx, targets)
	if err != nil {
		e.logger.Error().Err(err).Msg("reconciliation completed with failures")
	}
	for _, res := range results {
		if res.Added+res.Updated+res.Removed+res.Failed > 0 {
			e.logger.Info().
				Str("zone", res.Zone).
				Int("added", res.Added).
				Int("updated", res.Updated).
				Int("removed", res.Removed).
				Int("failed", res.Failed).
				Msg("zone reconciled")
		}
	}

	throttledPairs := 0
	for _, st := range e.tracker.Snapshot() {
		if st.State == types.LoadThrottled {
			throttledPairs++
		}
	}
	metrics.NodesThrottled.Set(float64(throttledPairs))

	return nil
}

func (e *Engine) maybeReload() {
	if e.reload == nil {
		return
	}
	cfg, err := e.reload()
	if err != nil {
		e.logger.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}
	e.cfg = cfg
	lb := cfg.LoadBalancing
	e.tracker.SetThresholds(load.Thresholds{
		Enabled:      lb.Enabled,
		MaxUsers:     lb.MaxUsersPerNode,
		RecoverUsers: lb.RecoverUsersPerNode,
	})
}

// emitHealthTransitions publishes node.healthy / node.unhealthy on state
// edges only. The first observation of a node seeds the map silently.
func (e *Engine) emitHealthTransitions(nodes []types.Node, verdicts map[string]health.Verdict, stats health.Stats) {
	for _, n := range nodes {
		v := verdicts[n.Address]
		prev, seen := e.prevHealthy[n.Address]
		e.prevHealthy[n.Address] = v.Healthy

		if !seen || prev == v.Healthy {
			continue
		}

		payload := events.NodeTransition{
			Name:          n.Name,
			Address:       n.Address,
			OnlineCount:   stats.Online,
			TotalCount:    stats.Total,
			DisabledCount: stats.Disabled,
		}
		if v.Healthy {
			e.logger.Info().Str("node", n.Address).Msg("node became healthy")
			e.notifier.Accept(events.New(events.EventNodeBecameHealthy, payload))
		} else {
			payload.Reason = string(v.Reason)
			e.logger.Warn().Str("node", n.Address).Str("reason", payload.Reason).Msg("node became unhealthy")
			e.notifier.Accept(events.New(events.EventNodeBecameUnhealthy, payload))
		}
	}
}

// emitAllDown escalates once when the last healthy node disappears and
// rearms after any recovery.
func (e *Engine) emitAllDown(nodes []types.Node, verdicts map[string]health.Verdict) {
	healthy := 0
	var affected []string
	for _, n := range nodes {
		if verdicts[n.Address].Healthy {
			healthy++
		} else {
			affected = append(affected, n.Address)
		}
	}

	allDown := len(nodes) > 0 && healthy == 0
	if allDown && !e.prevAllDown {
		e.logger.Error().Int("total", len(nodes)).Msg("all nodes down")
		e.notifier.Accept(events.New(events.EventAllNodesDown, events.FleetDown{
			Total:    len(nodes),
			Affected: affected,
		}))
	}
	e.prevAllDown = allDown
}

// observeLoad feeds user counts through the hysteresis tracker for every
// (node, zone) pair and publishes throttle/restore transitions.
func (e *Engine) observeLoad(zones []types.Zone, nodes []types.Node) {
	byAddress := make(map[string]types.Node, len(nodes))
	for _, n := range nodes {
		byAddress[n.Address] = n
	}

	now := time.Now()
	for _, zone := range zones {
		for _, ip := range zone.IPs {
			node, ok := byAddress[ip]
			if !ok {
				continue
			}
			tx := e.tracker.Observe(zone.FQDN(), types.LoadSample{
				NodeAddress: ip,
				UserCount:   node.UsersOnline,
				Timestamp:   now,
			})
			if tx == nil {
				continue
			}

			payload := events.LoadChange{
				Name:      node.Name,
				Address:   ip,
				Domain:    zone.FQDN(),
				Users:     tx.UserCount,
				Threshold: tx.Threshold,
			}
			if tx.To == types.LoadThrottled {
				e.logger.Info().Str("node", ip).Str("zone", zone.FQDN()).
					Int("users", tx.UserCount).Msg("node throttled")
				e.notifier.Accept(events.New(events.EventNodeThrottled, payload))
			} else {
				e.logger.Info().Str("node", ip).Str("zone", zone.FQDN()).
					Int("users", tx.UserCount).Msg("node restored")
				e.notifier.Accept(events.New(events.EventNodeRestored, payload))
			}
		}
	}
}

// pruneDeparted drops cross-tick state for addresses that left the
// snapshot entirely, so a node removed from the fleet starts clean if
// it ever returns.
func (e *Engine) pruneDeparted(nodes []types.Node) {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.Address] = true
	}
	for addr := range e.prevHealthy {
		if !present[addr] {
			delete(e.prevHealthy, addr)
			e.tracker.Forget(addr)
		}
	}
}

// buildTargets computes desired state per zone and resolves provider
// zone identifiers. A domain whose zone ID cannot be resolved is
// skipped for this tick and retried on the next.
func (e *Engine) buildTargets(ctx context.Context, zones []types.Zone, verdicts map[string]health.Verdict, users map[string]int) []reconcile.Target {
	var targets []reconcile.Target
	for _, zone := range zones {
		zoneID, err := e.zoneID(ctx, zone.Domain)
		if err != nil {
			e.logger.Warn().Err(err).Str("domain", zone.Domain).Msg("zone id unresolved, skipping zone")
			continue
		}

		outcome := plan.Compute(plan.Input{
			Zone:           zone,
			Health:         verdicts,
			Loads:          e.tracker.ZoneStates(zone.FQDN(), zone.IPs),
			Users:          users,
			MinActiveNodes: e.cfg.LoadBalancing.MinActiveNodes,
		})

		if outcome.FloorUnreachable {
			e.logger.Warn().
				Str("zone", zone.FQDN()).
				Int("healthy", outcome.HealthyCount).
				Int("floor", e.cfg.LoadBalancing.MinActiveNodes).
				Msg("not enough healthy nodes to satisfy floor, publishing all healthy")
		}
		for _, ip := range outcome.Promoted {
			e.logger.Warn().
				Str("zone", zone.FQDN()).
				Str("node", ip).
				Msg("throttled node kept active to hold the floor")
		}

		metrics.RecordsDesired.WithLabelValues(zone.FQDN()).Set(float64(len(outcome.Desired)))
		targets = append(targets, reconcile.Target{
			ZoneID:  zoneID,
			Zone:    zone,
			Desired: outcome.Desired,
		})
	}
	return targets
}

// zoneID resolves and caches a domain's provider zone identifier for
// the process lifetime.
func (e *Engine) zoneID(ctx context.Context, domain string) (string, error) {
	if id, ok := e.zoneIDs[domain]; ok {
		return id, nil
	}
	id, err := e.provider.ZoneID(ctx, domain)
	if err != nil {
		return "", err
	}
	e.zoneIDs[domain] = id
	return id, nil
}

// LogZones resolves every configured domain and logs the configured IP
// sets next to the records currently published. Used at startup and by
// the zones subcommand.
func (e *Engine) LogZones(ctx context.Context) {
	for _, zone := range e.cfg.Zones() {
		logger := e.logger.With().Str("zone", zone.FQDN()).Logger()

		zoneID, err := e.zoneID(ctx, zone.Domain)
		if err != nil {
			logger.Warn().Err(err).Msg("could not resolve zone id")
			continue
		}

		recs, err := e.provider.Records(ctx, zoneID, zone.FQDN())
		if err != nil {
			logger.Warn().Err(err).Msg("could not list records")
			continue
		}

		published := make([]string, 0, len(recs))
		for _, r := range recs {
			published = append(published, r.IP)
		}
		logger.Info().
			Strs("configured", zone.IPs).
			Strs("published", published).
			Int("ttl", zone.TTL).
			Bool("proxied", zone.Proxied).
			Msg("zone")
	}
}

func configuredAddresses(zones []types.Zone) map[string]bool {
	set := make(map[string]bool)
	for _, z := range zones {
		for _, ip := range z.IPs {
			set[ip] = true
		}
	}
	return set
}

func filterConfigured(nodes []types.Node, configured map[string]bool) []types.Node {
	out := make([]types.Node, 0, len(nodes))
	for _, n := range nodes {
		if configured[n.Address] {
			out = append(out, n)
		}
	}
	return out
}

type noopNotifier struct{}

func (noopNotifier) Accept(*events.Event) {}
