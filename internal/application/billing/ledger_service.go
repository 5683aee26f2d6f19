package billing

import (
	"context"
	"errors"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerServiceConfig contains configuration for LedgerService
type LedgerServiceConfig struct {
	// PlatformOwnerID is the reserved organization that absorbs the cost of
	// running the metering system itself.
	PlatformOwnerID uuid.UUID

	// CurrencyRate is snapshotted onto new ledger entries at creation time.
	CurrencyRate decimal.Decimal

	// SelfBillBaseOps is the database-operation overhead charged to the
	// platform owner per ledger mutation. It is an estimate of the metering
	// system's own cost, tunable rather than measured.
	SelfBillBaseOps int64

	// SelfBillCreateOps is the extra operation overhead when a mutation also
	// created a new period entry.
	SelfBillCreateOps int64
}

// DefaultLedgerServiceConfig returns default configuration
func DefaultLedgerServiceConfig(ownerID uuid.UUID) LedgerServiceConfig {
	return LedgerServiceConfig{
		PlatformOwnerID:   ownerID,
		CurrencyRate:      decimal.NewFromInt(1),
		SelfBillBaseOps:   2,
		SelfBillCreateOps: 2,
	}
}

// LedgerService applies accumulated usage deltas to the billing ledger.
//
// Every non-meta apply triggers a one-level self-billing apply against the
// platform owner's entry. Termination is explicit: the meta flag on Apply
// skips further self-billing, so refactored call sites cannot reintroduce
// unbounded recursion.
type LedgerService struct {
	ledgers    billing.LedgerRepository
	aggregates billing.AggregateRepository
	orgs       identity.OrganizationRepository
	rates      *billing.RateTable
	config     LedgerServiceConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	ledgers billing.LedgerRepository,
	aggregates billing.AggregateRepository,
	orgs identity.OrganizationRepository,
	rates *billing.RateTable,
	cfg LedgerServiceConfig,
	logger *zap.Logger,
) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		ledgers:    ledgers,
		aggregates: aggregates,
		orgs:       orgs,
		rates:      rates,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// GetOrCreate fetches the organization's entry for the period, creating it via
// rollover when absent. Concurrent first-events resolve to a single persisted
// entry through the repository's create-if-absent semantics.
func (s *LedgerService) GetOrCreate(ctx context.Context, organizationID uuid.UUID, period billing.Period, tier billing.Tier) (*billing.LedgerEntry, bool, error) {
	entry, err := s.ledgers.FindByKey(ctx, organizationID, period, tier)
	if err == nil {
		return entry, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	prior, err := s.ledgers.FindLatestByOrganization(ctx, organizationID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	fresh, err := billing.NewRolloverEntry(organizationID, period, tier, prior, s.config.CurrencyRate)
	if err != nil {
		return nil, false, err
	}

	persisted, created, err := s.ledgers.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("Created ledger entry for new billing period",
			zap.String("organization_id", organizationID.String()),
			zap.String("period", period.String()),
			zap.String("tier", tier.String()),
			zap.Bool("rolled_over", prior != nil),
		)
	}
	return persisted, created, nil
}

// Apply accumulates a request's usage deltas into the current period's ledger
// entry using atomic field-level increments, then mirrors them into the
// platform-wide aggregate and charges the metering overhead to the platform
// owner. meta marks a self-billing apply and stops the recursion after one
// level.
//
// A persistence failure after the entry was resolved is returned to the
// caller; the delta is not durably recorded and the loss is logged rather
// than silently swallowed.
func (s *LedgerService) Apply(ctx context.Context, organizationID uuid.UUID, deltas []billing.Delta, meta bool) error {
	if organizationID == uuid.Nil {
		return shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}

	deltas = filterKnownFields(deltas)
	if len(deltas) == 0 {
		return nil
	}

	tier, err := s.tierFor(ctx, organizationID, meta)
	if err != nil {
		return err
	}

	period := billing.PeriodOf(s.now())
	entry, created, err := s.GetOrCreate(ctx, organizationID, period, tier)
	if err != nil {
		return err
	}

	if err := s.ledgers.AddUsage(ctx, organizationID, period, tier, deltas, s.rates); err != nil {
		s.logger.Error("Usage delta was not durably recorded",
			zap.String("organization_id", organizationID.String()),
			zap.String("period", period.String()),
			zap.Int("delta_count", len(deltas)),
			zap.Error(err),
		)
		return err
	}

	if err := s.aggregates.AddUsage(ctx, period, deltas); err != nil {
		// The aggregate only backs retroactive allocation; a miss here is
		// recoverable at the next apply, so the organization's write stands.
		s.logger.Warn("Failed to update platform usage aggregate",
			zap.String("period", period.String()),
			zap.Error(err),
		)
	}

	if !meta {
		s.selfBill(ctx, created, entry)
	}
	return nil
}

// selfBill charges the metering overhead of one ledger mutation to the
// platform owner's account. The charge is an approximation: a fixed operation
// increment plus, on entry creation, a storage delta sized by the serialized
// entry. Failures leave the owner's account stale, which is acceptable for an
// accounting estimate, and are logged only.
func (s *LedgerService) selfBill(ctx context.Context, createdEntry bool, entry *billing.LedgerEntry) {
	ops := s.config.SelfBillBaseOps
	if createdEntry {
		ops += s.config.SelfBillCreateOps
	}

	metaDeltas := []billing.Delta{
		{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(ops)},
	}
	if createdEntry {
		metaDeltas = append(metaDeltas, billing.Delta{
			Field: billing.FieldDatabaseStorageAndBackup,
			Value: billing.SizeInGiB(entry),
		})
	}

	if err := s.Apply(ctx, s.config.PlatformOwnerID, metaDeltas, true); err != nil {
		s.logger.Warn("Self-billing apply failed, owner account is stale",
			zap.Error(err),
		)
	}
}

// tierFor resolves the billing tier for an organization. Self-billing and the
// platform owner always bill against the premium tier without a lookup.
func (s *LedgerService) tierFor(ctx context.Context, organizationID uuid.UUID, meta bool) (billing.Tier, error) {
	if meta || organizationID == s.config.PlatformOwnerID {
		return billing.TierPremium, nil
	}

	org, err := s.orgs.FindByID(ctx, organizationID)
	if err != nil {
		return "", err
	}
	if org.Plan == identity.PlanPremium {
		return billing.TierPremium, nil
	}
	return billing.TierFreemium, nil
}

// filterKnownFields drops deltas for fields the ledger does not carry.
func filterKnownFields(deltas []billing.Delta) []billing.Delta {
	out := deltas[:0:len(deltas)]
	for _, d := range deltas {
		if d.Field.IsValid() {
			out = append(out, d)
		}
	}
	return out
}
