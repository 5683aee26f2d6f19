package billing

import (
	"context"

	"github.com/google/uuid"
)

// LedgerRepository defines persistence for billing ledger entries.
//
// The ledger is append-only per (organization, period, tier): entries are
// created once, mutated by increments throughout their period, and never
// deleted.
type LedgerRepository interface {
	// CreateIfAbsent persists a new entry unless one already exists for its
	// (organization, period, tier) key. It returns the persisted entry and
	// created=false when a concurrent writer won the race; the second attempt
	// must resolve to the first document, never produce a duplicate.
	CreateIfAbsent(ctx context.Context, entry *LedgerEntry) (*LedgerEntry, bool, error)

	// FindByKey retrieves the entry for an organization, period and tier.
	// Returns shared.ErrNotFound when absent.
	FindByKey(ctx context.Context, organizationID uuid.UUID, period Period, tier Tier) (*LedgerEntry, error)

	// FindLatestByOrganization retrieves the organization's most recent entry
	// across all periods, used as the rollover source. Returns
	// shared.ErrNotFound when the organization has no entries at all.
	FindLatestByOrganization(ctx context.Context, organizationID uuid.UUID) (*LedgerEntry, error)

	// AddUsage atomically increments field values on the entry identified by
	// the natural key and re-snapshots each field's cost at the given rates.
	// The increments execute as a single conditional update, not a
	// read-modify-write, so concurrent applies never lose deltas.
	AddUsage(ctx context.Context, organizationID uuid.UUID, period Period, tier Tier, deltas []Delta, rates *RateTable) error

	// Update persists a fully recalculated entry (billing run, retroactive
	// allocation, payment status changes).
	Update(ctx context.Context, entry *LedgerEntry) error

	// ListByPeriod retrieves every organization's entry for a period.
	ListByPeriod(ctx context.Context, period Period) ([]*LedgerEntry, error)

	// CountByPeriod counts ledger entries in a period, the denominator for
	// splitting the base service charge.
	CountByPeriod(ctx context.Context, period Period) (int64, error)
}

// AggregateRepository defines persistence for platform-wide usage aggregates.
// Aggregates are append-only per period.
type AggregateRepository interface {
	// FindByPeriod retrieves the aggregate for a period. Returns
	// shared.ErrNotFound when no usage was ever recorded for it.
	FindByPeriod(ctx context.Context, period Period) (*UsageAggregate, error)

	// AddUsage lazily creates the period's aggregate and atomically
	// increments its field totals.
	AddUsage(ctx context.Context, period Period, deltas []Delta) error
}
