package billing

import (
	"github.com/shopspring/decimal"
)

// RateTable maps metered fields to their dollar rate per unit. Rates are
// externally configured and may change between periods; a rate change applies
// to future accumulation only and never rewrites stored costs. Retroactive
// allocation is the one exception, and it uses its own per-period rates.
type RateTable struct {
	rates map[MeteredField]decimal.Decimal
	// BaseServiceRate is the fixed platform charge for a period, split evenly
	// across ledger entries during allocation.
	BaseServiceRate decimal.Decimal
}

// NewRateTable builds a rate table from per-field dollar rates.
func NewRateTable(rates map[MeteredField]decimal.Decimal, baseServiceRate decimal.Decimal) *RateTable {
	table := &RateTable{
		rates:           make(map[MeteredField]decimal.Decimal, len(rates)),
		BaseServiceRate: baseServiceRate,
	}
	for f, r := range rates {
		table.rates[f] = r
	}
	return table
}

// NewRateTableFromFloats builds a rate table from a string-keyed float map,
// the shape the configuration layer produces. Unknown field names are skipped.
func NewRateTableFromFloats(rates map[string]float64, baseServiceRate float64) *RateTable {
	parsed := make(map[MeteredField]decimal.Decimal, len(rates))
	for name, rate := range rates {
		field, err := ParseMeteredField(name)
		if err != nil {
			continue
		}
		parsed[field] = decimal.NewFromFloat(rate)
	}
	return NewRateTable(parsed, decimal.NewFromFloat(baseServiceRate))
}

// Rate returns the dollar rate for a field, zero when unconfigured.
func (t *RateTable) Rate(field MeteredField) decimal.Decimal {
	return t.rates[field]
}

// Has reports whether a rate is configured for the field.
func (t *RateTable) Has(field MeteredField) bool {
	_, ok := t.rates[field]
	return ok
}
