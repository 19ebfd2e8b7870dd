package provider

import (
	"context"
	"errors"

	"github.com/fleetdns/zonekeeper/pkg/types"
)

// ErrZoneNotFound is returned when a domain has no zone at the provider.
var ErrZoneNotFound = errors.New("zone not found")

// Provider is the DNS provider surface the reconciler drives. All calls
// are remote and context-bound; implementations handle timeouts and
// bounded retry internally so the diff logic never does.
type Provider interface {
	// ZoneID resolves a domain name to the provider zone identifier.
	ZoneID(ctx context.Context, domain string) (string, error)

	// Records lists the A records currently published for a record name.
	Records(ctx context.Context, zoneID, fqdn string) ([]types.RecordState, error)

	// Create publishes a new A record.
	Create(ctx context.Context, zoneID, fqdn string, rec types.RecordState) error

	// Update rewrites an existing record in place; rec.ID selects it.
	Update(ctx context.Context, zoneID, fqdn string, rec types.RecordState) error

	// Delete removes a record by provider identifier.
	Delete(ctx context.Context, zoneID, recordID string) error
}
