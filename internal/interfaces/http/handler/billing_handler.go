package handler

import (
	"context"
	"errors"

	appbilling "github.com/edusuite/backend/internal/application/billing"
	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/edusuite/backend/internal/interfaces/http/dto"
	"github.com/edusuite/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PeriodAllocator retroactively allocates costs for one billing period
type PeriodAllocator interface {
	Allocate(ctx context.Context, period billing.Period) (appbilling.AllocationReport, error)
}

// PeriodCloser runs the month-end close-out for one billing period
type PeriodCloser interface {
	CloseOutPeriod(ctx context.Context, period billing.Period) (appbilling.BillingRunReport, error)
}

// BillingHandler serves ledger reads and administrative billing runs
type BillingHandler struct {
	BaseHandler
	ledgers   billing.LedgerRepository
	orgs      identity.OrganizationRepository
	allocator PeriodAllocator
	closer    PeriodCloser
	logger    *zap.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(
	ledgers billing.LedgerRepository,
	orgs identity.OrganizationRepository,
	allocator PeriodAllocator,
	closer PeriodCloser,
	logger *zap.Logger,
) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{
		ledgers:   ledgers,
		orgs:      orgs,
		allocator: allocator,
		closer:    closer,
		logger:    logger,
	}
}

// GetCurrentLedger returns the calling organization's ledger entry for the
// current billing period.
//
//	GET /api/v1/billing/ledger/current
func (h *BillingHandler) GetCurrentLedger(c *gin.Context) {
	h.getLedger(c, billing.CurrentPeriod())
}

// GetLedgerByPeriod returns the calling organization's ledger entry for a
// specific period.
//
//	GET /api/v1/billing/ledger/:period
func (h *BillingHandler) GetLedgerByPeriod(c *gin.Context) {
	period, err := billing.ParsePeriod(c.Param("period"))
	if err != nil {
		h.BadRequest(c, "Period must look like YYYY-MM")
		return
	}
	h.getLedger(c, period)
}

func (h *BillingHandler) getLedger(c *gin.Context, period billing.Period) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		h.BadRequest(c, "X-Organization-ID header is required")
		return
	}

	tier, err := h.tierFor(c, period)
	if err != nil {
		return
	}

	entry, err := h.ledgers.FindByKey(c.Request.Context(), orgID, period, tier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "No ledger entry exists for this period")
			return
		}
		h.logger.Error("Failed to load ledger entry",
			zap.String("organization_id", orgID.String()),
			zap.String("period", period.String()),
			zap.Error(err),
		)
		h.InternalError(c, "Failed to load ledger entry")
		return
	}

	h.Success(c, dto.NewLedgerEntryResponse(entry))
}

// GetUsageSummary returns a compact snapshot of the calling organization's
// usage and running cost for the current period.
//
//	GET /api/v1/billing/usage/summary
func (h *BillingHandler) GetUsageSummary(c *gin.Context) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		h.BadRequest(c, "X-Organization-ID header is required")
		return
	}

	period := billing.CurrentPeriod()
	tier, err := h.tierFor(c, period)
	if err != nil {
		return
	}

	entry, err := h.ledgers.FindByKey(c.Request.Context(), orgID, period, tier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// No metered activity yet this period; report zeros.
			entry, err = billing.NewLedgerEntry(orgID, period, tier, decimal.NewFromInt(1))
			if err != nil {
				h.InternalError(c, "Failed to build usage summary")
				return
			}
		} else {
			h.InternalError(c, "Failed to load usage summary")
			return
		}
	}

	usage := make([]dto.FieldUsageResponse, 0, len(billing.AllMeteredFields))
	for _, f := range billing.AllMeteredFields {
		u := entry.Usage[f]
		usage = append(usage, dto.FieldUsageResponse{
			Field:        f.String(),
			DisplayName:  f.DisplayName(),
			Value:        u.Value.String(),
			CostInDollar: u.CostInDollar.String(),
		})
	}

	h.Success(c, dto.UsageSummaryResponse{
		OrganizationID: orgID.String(),
		Period:         period.String(),
		Tier:           tier.String(),
		Usage:          usage,
		RunningCost:    entry.FieldCostTotal().Add(entry.FeatureTotal()).String(),
	})
}

// AllocatePeriod retroactively allocates an unbilled period's costs across
// every organization's recorded usage. Idempotent; already-billed entries are
// untouched.
//
//	POST /api/v1/admin/billing/allocate/:period
func (h *BillingHandler) AllocatePeriod(c *gin.Context) {
	period, err := billing.ParsePeriod(c.Param("period"))
	if err != nil {
		h.BadRequest(c, "Period must look like YYYY-MM")
		return
	}

	report, err := h.allocator.Allocate(c.Request.Context(), period)
	if err != nil {
		if errors.Is(err, shared.ErrMissingAggregate) {
			h.NotFound(c, "No platform usage aggregate exists for this period")
			return
		}
		h.logger.Error("Retroactive allocation failed",
			zap.String("period", period.String()),
			zap.Error(err),
		)
		h.InternalError(c, "Retroactive allocation failed")
		return
	}

	h.Success(c, report)
}

// ClosePeriod runs the month-end close-out, computing totals and marking every
// open entry of the period as billed.
//
//	POST /api/v1/admin/billing/close/:period
func (h *BillingHandler) ClosePeriod(c *gin.Context) {
	period, err := billing.ParsePeriod(c.Param("period"))
	if err != nil {
		h.BadRequest(c, "Period must look like YYYY-MM")
		return
	}

	report, err := h.closer.CloseOutPeriod(c.Request.Context(), period)
	if err != nil {
		h.logger.Error("Billing close-out failed",
			zap.String("period", period.String()),
			zap.Error(err),
		)
		h.InternalError(c, "Billing close-out failed")
		return
	}

	h.Success(c, report)
}

// tierFor resolves the tier the organization's ledger entries are billed
// under. Writes an error response and returns a non-nil error on failure.
func (h *BillingHandler) tierFor(c *gin.Context, period billing.Period) (billing.Tier, error) {
	orgID, _ := middleware.GetOrganizationID(c)

	org, err := h.orgs.FindByID(c.Request.Context(), orgID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Organization not found")
			return "", err
		}
		h.InternalError(c, "Failed to load organization")
		return "", err
	}

	if org.Plan == identity.PlanPremium {
		return billing.TierPremium, nil
	}
	return billing.TierFreemium, nil
}
