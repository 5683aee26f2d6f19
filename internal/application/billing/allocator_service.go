package billing

import (
	"context"
	"errors"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllocationReport summarizes one retroactive allocation run.
type AllocationReport struct {
	Period         billing.Period  `json:"period"`
	EntriesBilled  int             `json:"entries_billed"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
}

// AllocatorService reconstructs a missed month's cost distribution across
// organizations from the platform-wide usage aggregate.
//
// This is proportional cost allocation, not per-unit pricing: each unbilled
// entry is charged its share of the period's external rate per flow field,
// `entryValue / aggregateValue × rate(field)`, and an even slice of the fixed
// base service charge. The reconstruction is fair in aggregate rather than
// exact per unit.
type AllocatorService struct {
	ledgers         billing.LedgerRepository
	aggregates      billing.AggregateRepository
	rates           *billing.RateTable
	platformOwnerID uuid.UUID
	logger          *zap.Logger
	now             func() time.Time
}

// NewAllocatorService creates a new retroactive allocator
func NewAllocatorService(
	ledgers billing.LedgerRepository,
	aggregates billing.AggregateRepository,
	rates *billing.RateTable,
	platformOwnerID uuid.UUID,
	logger *zap.Logger,
) *AllocatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocatorService{
		ledgers:         ledgers,
		aggregates:      aggregates,
		rates:           rates,
		platformOwnerID: platformOwnerID,
		logger:          logger,
		now:             time.Now,
	}
}

// Allocate bills every NotBilled entry of the period proportionally against
// the platform aggregate and persists the results as Billed. Entries already
// billed are left untouched.
func (s *AllocatorService) Allocate(ctx context.Context, period billing.Period) (AllocationReport, error) {
	report := AllocationReport{Period: period, TotalAllocated: decimal.Zero}

	agg, err := s.aggregates.FindByPeriod(ctx, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return report, shared.ErrMissingAggregate
		}
		return report, err
	}

	entries, err := s.ledgers.ListByPeriod(ctx, period)
	if err != nil {
		return report, err
	}
	if len(entries) == 0 {
		return report, nil
	}

	// The fixed platform charge is divided evenly across every entry of the
	// period, billed or not, so late allocation does not inflate shares.
	baseShare := s.rates.BaseServiceRate.Div(decimal.NewFromInt(int64(len(entries))))
	billedAt := s.now()

	for _, entry := range entries {
		if entry.IsBilled() {
			continue
		}

		for field, usage := range entry.Usage {
			if !field.IsFlow() {
				continue
			}
			share := agg.Share(field, usage.Value)
			usage.CostInDollar = share.Mul(s.rates.Rate(field))
			entry.Usage[field] = usage
		}

		base := entry.Usage[billing.FieldBaseServiceCost]
		base.CostInDollar = baseShare
		entry.Usage[billing.FieldBaseServiceCost] = base

		includeFeatures := entry.OrganizationID != s.platformOwnerID
		total := entry.ComputeTotal(includeFeatures)
		entry.MarkBilled(billedAt)

		if err := s.ledgers.Update(ctx, entry); err != nil {
			s.logger.Error("Failed to persist allocated ledger entry",
				zap.String("organization_id", entry.OrganizationID.String()),
				zap.String("period", period.String()),
				zap.Error(err),
			)
			return report, err
		}

		report.EntriesBilled++
		report.TotalAllocated = report.TotalAllocated.Add(total)
	}

	return report, nil
}
