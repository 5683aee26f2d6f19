package billing

import (
	"context"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BillingRunReport summarizes one period close-out.
type BillingRunReport struct {
	Period        billing.Period  `json:"period"`
	EntriesBilled int             `json:"entries_billed"`
	TotalBilled   decimal.Decimal `json:"total_billed"`
}

// BillingRunService closes out a finished billing period: it derives each
// entry's total from the costs snapshotted during accumulation plus feature
// charges, and marks the entry Billed. This is the normal monthly path; the
// retroactive allocator only exists to recover periods this run missed.
type BillingRunService struct {
	ledgers         billing.LedgerRepository
	platformOwnerID uuid.UUID
	logger          *zap.Logger
	now             func() time.Time
}

// NewBillingRunService creates a new billing run service
func NewBillingRunService(ledgers billing.LedgerRepository, platformOwnerID uuid.UUID, logger *zap.Logger) *BillingRunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingRunService{
		ledgers:         ledgers,
		platformOwnerID: platformOwnerID,
		logger:          logger,
		now:             time.Now,
	}
}

// CloseOutPeriod computes totals for every NotBilled entry of the period and
// marks them Billed. Already-billed entries are untouched; the run is
// idempotent.
func (s *BillingRunService) CloseOutPeriod(ctx context.Context, period billing.Period) (BillingRunReport, error) {
	report := BillingRunReport{Period: period, TotalBilled: decimal.Zero}

	entries, err := s.ledgers.ListByPeriod(ctx, period)
	if err != nil {
		return report, err
	}

	billedAt := s.now()
	for _, entry := range entries {
		if entry.IsBilled() {
			continue
		}

		includeFeatures := entry.OrganizationID != s.platformOwnerID
		total := entry.ComputeTotal(includeFeatures)
		entry.MarkBilled(billedAt)

		if err := s.ledgers.Update(ctx, entry); err != nil {
			s.logger.Error("Failed to persist billed ledger entry",
				zap.String("organization_id", entry.OrganizationID.String()),
				zap.String("period", period.String()),
				zap.Error(err),
			)
			return report, err
		}

		report.EntriesBilled++
		report.TotalBilled = report.TotalBilled.Add(total)
	}

	s.logger.Info("Billing run completed",
		zap.String("period", period.String()),
		zap.Int("entries_billed", report.EntriesBilled),
	)
	return report, nil
}
