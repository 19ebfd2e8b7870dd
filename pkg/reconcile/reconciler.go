package reconcile

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fleetdns/zonekeeper/pkg/events"
	"github.com/fleetdns/zonekeeper/pkg/log"
	"github.com/fleetdns/zonekeeper/pkg/metrics"
	"github.com/fleetdns/zonekeeper/pkg/provider"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

// zoneConcurrency bounds how many zones reconcile in parallel. Zones
// never share DNS state, so this is safe; operations inside one zone
// stay ordered.
const zoneConcurrency = 4

// Plan is the minimal operation set that converges one zone.
type Plan struct {
	Zone      types.Zone
	Additions []types.RecordState // desired IPs with no published record
	Updates   []types.RecordState // published IPs whose ttl/proxied drifted
	Removals  []types.RecordState // published records no longer desired
}

// Empty reports whether the plan is a no-op.
func (p Plan) Empty() bool {
	return len(p.Additions) == 0 && len(p.Updates) == 0 && len(p.Removals) == 0
}

// Diff computes the plan for a zone from desired and actual record sets.
// Membership is decided by IP; a record present on both sides whose
// (ttl, proxied) drifted becomes an update, so configuration-only
// changes converge too.
func Diff(zone types.Zone, desired, actual []types.RecordState) Plan {
	actualByIP := make(map[string]types.RecordState, len(actual))
	for _, rec := range actual {
		actualByIP[rec.IP] = rec
	}
	desiredByIP := make(map[string]types.RecordState, len(desired))
	for _, rec := range desired {
		desiredByIP[rec.IP] = rec
	}

	plan := Plan{Zone: zone}
	for _, want := range desired {
		have, ok := actualByIP[want.IP]
		if !ok {
			plan.Additions = append(plan.Additions, want)
			continue
		}
		if have.Tuple() != want.Tuple() {
			update := want
			update.ID = have.ID
			plan.Updates = append(plan.Updates, update)
		}
	}
	for _, have := range actual {
		if _, ok := desiredByIP[have.IP]; !ok {
			plan.Removals = append(plan.Removals, have)
		}
	}
	return plan
}

// Result summarizes one zone's reconciliation pass.
type Result struct {
	Zone    string
	Added   int
	Updated int
	Removed int
	Failed  int
}

// Target is one zone with its resolved provider identifier and desired
// record set.
type Target struct {
	ZoneID  string
	Zone    types.Zone
	Desired []types.RecordState
}

// Reconciler converges provider record sets toward desired state.
type Reconciler struct {
	provider provider.Provider
	notifier events.Notifier
	logger   zerolog.Logger
}

// New creates a reconciler publishing operation events to notifier.
func New(p provider.Provider, notifier events.Notifier) *Reconciler {
	return &Reconciler{
		provider: p,
		notifier: notifier,
		logger:   log.WithComponent("reconcile"),
	}
}

// ReconcileAll converges every target zone. Zones run concurrently and
// independently: one zone's failures never block another. The returned
// error aggregates all per-operation failures for the tick report.
func (r *Reconciler) ReconcileAll(ctx context.Context, targets []Target) ([]Result, error) {
	results := make([]Result, len(targets))
	var errs *multierror.Error

	var g errgroup.Group
	g.SetLimit(zoneConcurrency)

	errCh := make(chan error, len(targets))
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			res, err := r.ReconcileZone(ctx, target)
			results[i] = res
			if err != nil {
				errCh <- fmt.Errorf("zone %s: %w", target.Zone.FQDN(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)
	for err := range errCh {
		errs = multierror.Append(errs, err)
	}

	return results, errs.ErrorOrNil()
}

// ReconcileZone fetches the actual record set for one zone, diffs it
// against the desired set and applies the plan. Additions and updates
// go first so convergence over-provisions rather than under-provisions.
// Every operation is independent; failures are collected, reported and
// never cancel the remaining operations.
func (r *Reconciler) ReconcileZone(ctx context.Context, target Target) (Result, error) {
	zone := target.Zone
	fqdn := zone.FQDN()
	result := Result{Zone: fqdn}
	logger := r.logger.With().Str("zone", fqdn).Logger()

	actual, err := r.provider.Records(ctx, target.ZoneID, fqdn)
	if err != nil {
		metrics.DNSOperationsTotal.WithLabelValues("list", "error").Inc()
		return result, fmt.Errorf("failed to list records: %w", err)
	}

	plan := Diff(zone, target.Desired, actual)
	if plan.Empty() {
		logger.Debug().Msg("zone already converged")
		return result, nil
	}

	var errs *multierror.Error

	for _, rec := range plan.Additions {
		if ctx.Err() != nil {
			break // shutdown: stop between operations, never mid-operation
		}
		if err := r.provider.Create(ctx, target.ZoneID, fqdn, rec); err != nil {
			result.Failed++
			errs = multierror.Append(errs, err)
			r.reportFailure(logger, "add", rec.IP, fqdn, err)
			continue
		}
		result.Added++
		metrics.DNSOperationsTotal.WithLabelValues("add", "ok").Inc()
		logger.Info().Str("ip", rec.IP).Msg("record added")
		r.notifier.Accept(events.New(events.EventDNSRecordAdded, events.DNSChange{IP: rec.IP, Domain: fqdn}))
	}

	for _, rec := range plan.Updates {
		if ctx.Err() != nil {
			break
		}
		if err := r.provider.Update(ctx, target.ZoneID, fqdn, rec); err != nil {
			result.Failed++
			errs = multierror.Append(errs, err)
			r.reportFailure(logger, "update", rec.IP, fqdn, err)
			continue
		}
		result.Updated++
		metrics.DNSOperationsTotal.WithLabelValues("update", "ok").Inc()
		logger.Info().Str("ip", rec.IP).Int("ttl", rec.TTL).Bool("proxied", rec.Proxied).Msg("record updated")
	}

	for _, rec := range plan.Removals {
		if ctx.Err() != nil {
			break
		}
		if err := r.provider.Delete(ctx, target.ZoneID, rec.ID); err != nil {
			result.Failed++
			errs = multierror.Append(errs, err)
			r.reportFailure(logger, "remove", rec.IP, fqdn, err)
			continue
		}
		result.Removed++
		metrics.DNSOperationsTotal.WithLabelValues("remove", "ok").Inc()
		logger.Info().Str("ip", rec.IP).Msg("record removed")
		r.notifier.Accept(events.New(events.EventDNSRecordRemoved, events.DNSChange{IP: rec.IP, Domain: fqdn}))
	}

	return result, errs.ErrorOrNil()
}

func (r *Reconciler) reportFailure(logger zerolog.Logger, action, ip, fqdn string, err error) {
	metrics.DNSOperationsTotal.WithLabelValues(action, "error").Inc()
	logger.Error().Err(err).Str("action", action).Str("ip", ip).Msg("dns operation failed")
	r.notifier.Accept(events.New(events.EventDNSOperationError, events.DNSError{
		Action: action,
		IP:     ip,
		Domain: fqdn,
		Err:    err.Error(),
	}))
}
