package billing

import (
	"time"

	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier identifies the subscription tier a ledger entry is billed under.
type Tier string

const (
	// TierFreemium is the free tier with a limited subscription window
	TierFreemium Tier = "FREEMIUM"

	// TierPremium is the paid, usage-billed tier
	TierPremium Tier = "PREMIUM"
)

// String returns the string representation of Tier
func (t Tier) String() string {
	return string(t)
}

// IsValid returns true if the tier is valid
func (t Tier) IsValid() bool {
	return t == TierFreemium || t == TierPremium
}

// BillingStatus tracks whether an entry's total has been computed for invoicing.
type BillingStatus string

const (
	BillingStatusNotBilled BillingStatus = "NOT_BILLED"
	BillingStatusBilled    BillingStatus = "BILLED"
)

// PaymentStatus tracks settlement of a billed entry.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// FieldUsage holds the accumulated value and its dollar cost for one metered field.
// Cost is snapshotted at accumulation time: cost = value × rate(field), where the
// rate is whatever was configured when the delta arrived. Rate changes never
// rewrite stored costs; only retroactive allocation does.
type FieldUsage struct {
	Value        decimal.Decimal
	CostInDollar decimal.Decimal
}

// FeatureCharge is a flat-rate add-on billed on top of metered usage.
type FeatureCharge struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LedgerEntry is the persisted, append-only record of one organization's usage
// and cost for one billing period and subscription tier. Exactly one entry
// exists per (organization, period, tier); entries are never deleted.
type LedgerEntry struct {
	shared.OrganizationAggregateRoot
	Period           Period
	Tier             Tier
	BillingStatus    BillingStatus
	PaymentStatus    PaymentStatus
	Usage            map[MeteredField]FieldUsage
	FeaturesToCharge []FeatureCharge
	TotalCost        decimal.Decimal
	// CurrencyRate is the conversion rate snapshotted when the entry was
	// created. It is never mutated afterwards.
	CurrencyRate decimal.Decimal
	BilledAt     *time.Time
}

// NewLedgerEntry creates a fresh entry for the first metered event of a period,
// with every field zeroed.
func NewLedgerEntry(organizationID uuid.UUID, period Period, tier Tier, currencyRate decimal.Decimal) (*LedgerEntry, error) {
	if organizationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if !period.IsValid() {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period must look like YYYY-MM")
	}
	if !tier.IsValid() {
		return nil, shared.NewDomainError("INVALID_TIER", "Invalid subscription tier")
	}

	usage := make(map[MeteredField]FieldUsage, len(AllMeteredFields))
	for _, f := range AllMeteredFields {
		usage[f] = FieldUsage{Value: decimal.Zero, CostInDollar: decimal.Zero}
	}

	return &LedgerEntry{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(organizationID),
		Period:                    period,
		Tier:                      tier,
		BillingStatus:             BillingStatusNotBilled,
		PaymentStatus:             PaymentStatusUnpaid,
		Usage:                     usage,
		FeaturesToCharge:          make([]FeatureCharge, 0),
		TotalCost:                 decimal.Zero,
		CurrencyRate:              currencyRate,
	}, nil
}

// NewRolloverEntry creates the entry for a new billing period, carrying forward
// only stock values (stored data volume) from the most recent prior entry.
// Flow fields reset: operations, transfer and compute are activity of a period,
// while storage already paid for persists across periods. prior may be nil.
func NewRolloverEntry(organizationID uuid.UUID, period Period, tier Tier, prior *LedgerEntry, currencyRate decimal.Decimal) (*LedgerEntry, error) {
	entry, err := NewLedgerEntry(organizationID, period, tier, currencyRate)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return entry, nil
	}

	for _, f := range AllMeteredFields {
		if !f.IsStock() {
			continue
		}
		if carried, ok := prior.Usage[f]; ok {
			entry.Usage[f] = FieldUsage{Value: carried.Value, CostInDollar: decimal.Zero}
		}
	}
	return entry, nil
}

// ApplyDelta accumulates a delta into one field and re-snapshots its cost at
// the given rate. Unknown fields are ignored, matching the ledger contract
// that only fields present on the entry accumulate.
func (e *LedgerEntry) ApplyDelta(field MeteredField, delta, rate decimal.Decimal) {
	usage, ok := e.Usage[field]
	if !ok {
		return
	}
	usage.Value = usage.Value.Add(delta)
	usage.CostInDollar = usage.Value.Mul(rate)
	e.Usage[field] = usage
	e.UpdatedAt = time.Now()
}

// AddFeature appends a flat-rate add-on charge.
func (e *LedgerEntry) AddFeature(feature FeatureCharge) {
	e.FeaturesToCharge = append(e.FeaturesToCharge, feature)
	e.UpdatedAt = time.Now()
}

// FeatureTotal returns the sum of all flat-rate add-on prices.
func (e *LedgerEntry) FeatureTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range e.FeaturesToCharge {
		total = total.Add(f.Price)
	}
	return total
}

// FieldCostTotal returns the sum of every field's snapshotted cost.
func (e *LedgerEntry) FieldCostTotal() decimal.Decimal {
	total := decimal.Zero
	for _, u := range e.Usage {
		total = total.Add(u.CostInDollar)
	}
	return total
}

// ComputeTotal derives TotalCost from field costs plus feature charges.
// includeFeatures is false for the platform owner's own account, which is
// never charged for add-ons.
func (e *LedgerEntry) ComputeTotal(includeFeatures bool) decimal.Decimal {
	total := e.FieldCostTotal()
	if includeFeatures {
		total = total.Add(e.FeatureTotal())
	}
	e.TotalCost = total
	return total
}

// MarkBilled transitions the entry to Billed after a billing run or a
// retroactive allocation has computed its total.
func (e *LedgerEntry) MarkBilled(at time.Time) {
	e.BillingStatus = BillingStatusBilled
	e.BilledAt = &at
	e.UpdatedAt = at
}

// SetPaymentStatus records a settlement state change.
func (e *LedgerEntry) SetPaymentStatus(status PaymentStatus) error {
	switch status {
	case PaymentStatusUnpaid, PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		e.PaymentStatus = status
		e.UpdatedAt = time.Now()
		return nil
	default:
		return shared.NewDomainError("INVALID_PAYMENT_STATUS", "Invalid payment status")
	}
}

// IsBilled returns true once the entry's total has been computed.
func (e *LedgerEntry) IsBilled() bool {
	return e.BillingStatus == BillingStatusBilled
}

// IsPaid returns true once the entry has been settled.
func (e *LedgerEntry) IsPaid() bool {
	return e.PaymentStatus == PaymentStatusPaid
}

// FieldValue returns the accumulated value for a field (zero if absent).
func (e *LedgerEntry) FieldValue(field MeteredField) decimal.Decimal {
	return e.Usage[field].Value
}

// FieldCost returns the snapshotted cost for a field (zero if absent).
func (e *LedgerEntry) FieldCost(field MeteredField) decimal.Decimal {
	return e.Usage[field].CostInDollar
}
