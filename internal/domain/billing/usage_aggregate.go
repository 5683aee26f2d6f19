package billing

import (
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UsageAggregate holds platform-wide per-period totals of the metered fields,
// independent of organization. Each field's value equals the sum of all
// organizations' values for that field and period. Aggregates are created
// lazily on first use and serve only as the denominator in retroactive
// proportional allocation.
type UsageAggregate struct {
	shared.BaseAggregateRoot
	Period Period
	Values map[MeteredField]decimal.Decimal
}

// NewUsageAggregate creates an empty aggregate for a period.
func NewUsageAggregate(period Period) (*UsageAggregate, error) {
	if !period.IsValid() {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period must look like YYYY-MM")
	}

	values := make(map[MeteredField]decimal.Decimal, len(AllMeteredFields))
	for _, f := range AllMeteredFields {
		values[f] = decimal.Zero
	}

	return &UsageAggregate{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Period:            period,
		Values:            values,
	}, nil
}

// Add accumulates a delta into the platform-wide total for a field.
func (a *UsageAggregate) Add(field MeteredField, delta decimal.Decimal) {
	if _, ok := a.Values[field]; !ok {
		return
	}
	a.Values[field] = a.Values[field].Add(delta)
}

// Value returns the platform-wide total for a field (zero if absent).
func (a *UsageAggregate) Value(field MeteredField) decimal.Decimal {
	return a.Values[field]
}

// Share returns an organization's fraction of the platform-wide total for a
// field, or zero when the aggregate itself is zero.
func (a *UsageAggregate) Share(field MeteredField, orgValue decimal.Decimal) decimal.Decimal {
	total := a.Values[field]
	if total.IsZero() {
		return decimal.Zero
	}
	return orgValue.Div(total)
}
