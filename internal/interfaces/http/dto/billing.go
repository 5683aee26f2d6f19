package dto

import (
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
)

// FieldUsageResponse is one metered field's accumulated value and cost.
// Decimal quantities are serialized as strings to avoid float precision loss.
type FieldUsageResponse struct {
	Field        string `json:"field"`
	DisplayName  string `json:"display_name"`
	Value        string `json:"value"`
	CostInDollar string `json:"cost_in_dollar"`
}

// FeatureChargeResponse is a flat-rate add-on charge on a ledger entry
type FeatureChargeResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// LedgerEntryResponse is one organization's ledger entry for a period
type LedgerEntryResponse struct {
	ID               string                  `json:"id"`
	OrganizationID   string                  `json:"organization_id"`
	Period           string                  `json:"period"`
	Tier             string                  `json:"tier"`
	BillingStatus    string                  `json:"billing_status"`
	PaymentStatus    string                  `json:"payment_status"`
	Usage            []FieldUsageResponse    `json:"usage"`
	FeaturesToCharge []FeatureChargeResponse `json:"features_to_charge"`
	TotalCost        string                  `json:"total_cost"`
	CurrencyRate     string                  `json:"currency_rate"`
	BilledAt         *string                 `json:"billed_at,omitempty"`
	CreatedAt        string                  `json:"created_at"`
	UpdatedAt        string                  `json:"updated_at"`
}

// NewLedgerEntryResponse converts a ledger entry into its API representation
func NewLedgerEntryResponse(entry *billing.LedgerEntry) LedgerEntryResponse {
	usage := make([]FieldUsageResponse, 0, len(billing.AllMeteredFields))
	for _, f := range billing.AllMeteredFields {
		u := entry.Usage[f]
		usage = append(usage, FieldUsageResponse{
			Field:        f.String(),
			DisplayName:  f.DisplayName(),
			Value:        u.Value.String(),
			CostInDollar: u.CostInDollar.String(),
		})
	}

	features := make([]FeatureChargeResponse, 0, len(entry.FeaturesToCharge))
	for _, fc := range entry.FeaturesToCharge {
		features = append(features, FeatureChargeResponse{
			ID:    fc.ID,
			Name:  fc.Name,
			Price: fc.Price.String(),
		})
	}

	resp := LedgerEntryResponse{
		ID:               entry.ID.String(),
		OrganizationID:   entry.OrganizationID.String(),
		Period:           entry.Period.String(),
		Tier:             entry.Tier.String(),
		BillingStatus:    string(entry.BillingStatus),
		PaymentStatus:    string(entry.PaymentStatus),
		Usage:            usage,
		FeaturesToCharge: features,
		TotalCost:        entry.TotalCost.String(),
		CurrencyRate:     entry.CurrencyRate.String(),
		CreatedAt:        entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        entry.UpdatedAt.Format(time.RFC3339),
	}
	if entry.BilledAt != nil {
		billedAt := entry.BilledAt.Format(time.RFC3339)
		resp.BilledAt = &billedAt
	}
	return resp
}

// UsageSummaryResponse is the current period's usage snapshot for an organization
type UsageSummaryResponse struct {
	OrganizationID string               `json:"organization_id"`
	Period         string               `json:"period"`
	Tier           string               `json:"tier"`
	Usage          []FieldUsageResponse `json:"usage"`
	RunningCost    string               `json:"running_cost"`
}
