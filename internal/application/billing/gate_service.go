package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GateState names the state the subscription gate resolved for a request.
type GateState string

const (
	GateNoSubscription      GateState = "NO_SUBSCRIPTION"
	GateFreemiumActive      GateState = "FREEMIUM_ACTIVE"
	GateFreemiumExpired     GateState = "FREEMIUM_EXPIRED"
	GatePremiumGraced       GateState = "PREMIUM_GRACED"
	GatePremiumNeedsBilling GateState = "PREMIUM_NEEDS_BILLING"
	GatePremiumUnpaid       GateState = "PREMIUM_UNPAID"
	GatePremiumClear        GateState = "PREMIUM_CLEAR"
)

// GateDecision is the structured outcome of a gating call: either proceed, or
// a denial carrying an HTTP status and a human-readable remediation message.
type GateDecision struct {
	Allowed    bool      `json:"allowed"`
	State      GateState `json:"state"`
	HTTPStatus int       `json:"-"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func allow(state GateState) GateDecision {
	return GateDecision{Allowed: true, State: state, HTTPStatus: http.StatusOK}
}

func deny(state GateState, status int, code, message string) GateDecision {
	return GateDecision{Allowed: false, State: state, HTTPStatus: status, Code: code, Message: message}
}

// OwnerNotifier delivers out-of-band alerts to the platform owner. Delivery is
// best-effort; implementations must not block the request path.
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, subject, message string)
}

// GateService decides, per gated request, whether an organization may access
// metered functionality. It inspects the subscription record and the ledger
// entries for the current and previous period, and may trigger retroactive
// recalculation of an unbilled month.
type GateService struct {
	orgs       identity.OrganizationRepository
	ledgers    billing.LedgerRepository
	aggregates billing.AggregateRepository
	allocator  *AllocatorService
	notifier   OwnerNotifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewGateService creates a new subscription gate
func NewGateService(
	orgs identity.OrganizationRepository,
	ledgers billing.LedgerRepository,
	aggregates billing.AggregateRepository,
	allocator *AllocatorService,
	notifier OwnerNotifier,
	logger *zap.Logger,
) *GateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateService{
		orgs:       orgs,
		ledgers:    ledgers,
		aggregates: aggregates,
		allocator:  allocator,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate runs the gate state machine for one request.
func (s *GateService) Evaluate(ctx context.Context, organizationID uuid.UUID) (GateDecision, error) {
	org, err := s.orgs.FindByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.notifier.NotifyOwner(ctx,
				"Gated request without subscription",
				fmt.Sprintf("Organization %s attempted a gated operation without a subscription record", organizationID),
			)
			return deny(GateNoSubscription, http.StatusForbidden, "NO_SUBSCRIPTION",
				"No subscription found for this organization. Visit billing to subscribe."), nil
		}
		return GateDecision{}, err
	}

	now := s.now()

	if org.Plan == identity.PlanFreemium {
		if org.FreemiumCovers(now) {
			return allow(GateFreemiumActive), nil
		}
		return deny(GateFreemiumExpired, http.StatusPaymentRequired, "FREEMIUM_EXPIRED",
			"Your free period has ended. Visit billing to upgrade to premium."), nil
	}

	previous := billing.PeriodOf(now).Previous()

	// A recent upgrade whose freemium window still covers the lookback window
	// has nothing to settle yet.
	if org.FreemiumCovers(previous.Start()) {
		return allow(GatePremiumGraced), nil
	}

	entry, err := s.ledgers.FindByKey(ctx, organizationID, previous, billing.TierPremium)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// No usage last month, nothing owed.
			return allow(GatePremiumClear), nil
		}
		return GateDecision{}, err
	}

	if !entry.IsBilled() {
		if !now.After(org.BillingDateFor(previous.End())) {
			return allow(GatePremiumClear), nil
		}
		return s.recalculate(ctx, org, previous)
	}

	if !entry.IsPaid() {
		return deny(GatePremiumUnpaid, http.StatusPaymentRequired, "PREMIUM_UNPAID",
			"Last month's bill has not been paid. Visit billing to settle it."), nil
	}

	return allow(GatePremiumClear), nil
}

// recalculate handles the PremiumNeedsBilling state: the previous period was
// never billed and its billing date has passed. With the platform aggregate
// present the month is retroactively allocated and persisted before the
// request is rejected; the user must re-attempt after acknowledging the
// charge. A missing aggregate is a data-integrity fault that is reported to
// the platform owner and never auto-retried.
func (s *GateService) recalculate(ctx context.Context, org *identity.Organization, period billing.Period) (GateDecision, error) {
	if _, err := s.aggregates.FindByPeriod(ctx, period); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("Usage aggregate missing for unbilled period",
				zap.String("organization_id", org.ID.String()),
				zap.String("period", period.String()),
			)
			s.notifier.NotifyOwner(ctx,
				"Missing usage aggregate",
				fmt.Sprintf("Cannot bill period %s for organization %s: no platform usage aggregate exists", period, org.Code),
			)
			return deny(GatePremiumNeedsBilling, http.StatusInternalServerError, "MISSING_AGGREGATE",
				"Billing for last month is delayed. The platform owner has been notified; please try again later."), nil
		}
		return GateDecision{}, err
	}

	report, err := s.allocator.Allocate(ctx, period)
	if err != nil {
		return GateDecision{}, err
	}
	s.logger.Info("Retroactively allocated unbilled period",
		zap.String("period", period.String()),
		zap.Int("entries", report.EntriesBilled),
	)

	return deny(GatePremiumNeedsBilling, http.StatusPaymentRequired, "RECALCULATED",
		"Last month's bill was recalculated from recorded usage. Visit billing to review and pay it."), nil
}
