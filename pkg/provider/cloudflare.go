package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"

	"github.com/fleetdns/zonekeeper/pkg/log"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

const (
	defaultMaxRetries      = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
)

// Cloudflare implements Provider against the Cloudflare v4 API.
type Cloudflare struct {
	api        *cloudflare.API
	timeout    time.Duration
	maxRetries uint64
	logger     zerolog.Logger
}

// NewCloudflare builds a Cloudflare provider from an API token.
func NewCloudflare(token string, timeout time.Duration) (*Cloudflare, error) {
	api, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudflare client: %w", err)
	}
	return &Cloudflare{
		api:        api,
		timeout:    timeout,
		maxRetries: defaultMaxRetries,
		logger:     log.WithComponent("cloudflare"),
	}, nil
}

// ZoneID resolves a domain to its Cloudflare zone identifier.
func (c *Cloudflare) ZoneID(ctx context.Context, domain string) (string, error) {
	var zoneID string
	err := c.retry(ctx, func(ctx context.Context) error {
		zones, err := c.api.ListZones(ctx, domain)
		if err != nil {
			return fmt.Errorf("failed to list zones for %s: %w", domain, err)
		}
		if len(zones) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrZoneNotFound, domain))
		}
		zoneID = zones[0].ID
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("domain", domain).Str("zone_id", zoneID).Msg("resolved zone id")
	return zoneID, nil
}

// Records lists published A records for a record name.
func (c *Cloudflare) Records(ctx context.Context, zoneID, fqdn string) ([]types.RecordState, error) {
	var out []types.RecordState
	err := c.retry(ctx, func(ctx context.Context) error {
		recs, _, err := c.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
			Type: "A",
			Name: fqdn,
		})
		if err != nil {
			return fmt.Errorf("failed to list records for %s: %w", fqdn, err)
		}
		out = out[:0]
		for _, r := range recs {
			out = append(out, types.RecordState{
				ID:      r.ID,
				IP:      r.Content,
				TTL:     r.TTL,
				Proxied: r.Proxied != nil && *r.Proxied,
			})
		}
		return nil
	})
	return out, err
}

// Create publishes a new A record.
func (c *Cloudflare) Create(ctx context.Context, zoneID, fqdn string, rec types.RecordState) error {
	proxied := rec.Proxied
	return c.retry(ctx, func(ctx context.Context) error {
		_, err := c.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.CreateDNSRecordParams{
			Type:    "A",
			Name:    fqdn,
			Content: rec.IP,
			TTL:     rec.TTL,
			Proxied: &proxied,
		})
		if err != nil {
			return fmt.Errorf("failed to create record %s -> %s: %w", fqdn, rec.IP, err)
		}
		return nil
	})
}

// Update rewrites an existing record, keyed by rec.ID.
func (c *Cloudflare) Update(ctx context.Context, zoneID, fqdn string, rec types.RecordState) error {
	proxied := rec.Proxied
	return c.retry(ctx, func(ctx context.Context) error {
		_, err := c.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.UpdateDNSRecordParams{
			ID:      rec.ID,
			Type:    "A",
			Name:    fqdn,
			Content: rec.IP,
			TTL:     rec.TTL,
			Proxied: &proxied,
		})
		if err != nil {
			return fmt.Errorf("failed to update record %s -> %s: %w", fqdn, rec.IP, err)
		}
		return nil
	})
}

// Delete removes a record by identifier.
func (c *Cloudflare) Delete(ctx context.Context, zoneID, recordID string) error {
	return c.retry(ctx, func(ctx context.Context) error {
		if err := c.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), recordID); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", recordID, err)
		}
		return nil
	})
}

// retry runs op under the per-call timeout with bounded exponential
// backoff. Client errors (4xx) are permanent: retrying a rejected
// request cannot succeed.
func (c *Cloudflare) retry(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval
	bo.MaxInterval = defaultMaxInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err := op(opCtx)
		if err == nil {
			return nil
		}

		var apiErr *cloudflare.Error
		if errors.As(err, &apiErr) && apiErr.ClientError() {
			return backoff.Permanent(err)
		}

		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("cloudflare call failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
}
