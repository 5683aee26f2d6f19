package identity

import (
	"strings"
	"time"

	"github.com/edusuite/backend/internal/domain/shared"
)

// Plan identifies the subscription plan an organization is on.
type Plan string

const (
	// PlanFreemium grants access for a limited window at no charge
	PlanFreemium Plan = "FREEMIUM"

	// PlanPremium grants access billed monthly against metered usage
	PlanPremium Plan = "PREMIUM"
)

// String returns the string representation of Plan
func (p Plan) String() string {
	return string(p)
}

// IsValid returns true if the plan is valid
func (p Plan) IsValid() bool {
	return p == PlanFreemium || p == PlanPremium
}

// OrganizationStatus represents the lifecycle state of an organization.
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "ACTIVE"
	OrganizationStatusSuspended OrganizationStatus = "SUSPENDED"
)

// Organization is a tenant of the platform: one school, one subscription.
// It is the aggregate root for subscription state; the billing ledger refers
// to organizations only by ID.
type Organization struct {
	shared.BaseAggregateRoot
	Code         string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string             `gorm:"type:varchar(200);not null"`
	Status       OrganizationStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Plan         Plan               `gorm:"type:varchar(20);not null;default:'FREEMIUM'"`
	ContactEmail string             `gorm:"type:varchar(200)"`
	// FreemiumUntil bounds the free window. For premium organizations it marks
	// when the original freemium grace ends; gated requests inside that window
	// pass without a billing lookback.
	FreemiumUntil *time.Time `gorm:"index"`
	// BillingDay is the day of month (1-28) on which the previous period's
	// bill falls due.
	BillingDay int `gorm:"not null;default:5"`
}

// TableName returns the table name for GORM
func (Organization) TableName() string {
	return "organizations"
}

// NewOrganization creates a new organization on the freemium plan.
func NewOrganization(code, name string, freemiumDays int) (*Organization, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Organization code cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Organization name cannot be empty")
	}
	if freemiumDays <= 0 {
		return nil, shared.NewDomainError("INVALID_FREEMIUM_WINDOW", "Freemium window must be positive")
	}

	until := time.Now().AddDate(0, 0, freemiumDays)
	return &Organization{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Status:            OrganizationStatusActive,
		Plan:              PlanFreemium,
		FreemiumUntil:     &until,
		BillingDay:        5,
	}, nil
}

// Upgrade moves the organization to the premium plan. The freemium window is
// kept as-is; it still grants a billing grace for periods it covers.
func (o *Organization) Upgrade() {
	o.Plan = PlanPremium
	o.UpdatedAt = time.Now()
}

// FreemiumCovers reports whether the freemium window extends past the given time.
func (o *Organization) FreemiumCovers(t time.Time) bool {
	return o.FreemiumUntil != nil && o.FreemiumUntil.After(t)
}

// BillingDateFor returns when the bill for a period that ended at periodEnd
// falls due: the organization's billing day of the following month.
func (o *Organization) BillingDateFor(periodEnd time.Time) time.Time {
	day := o.BillingDay
	if day < 1 || day > 28 {
		day = 5
	}
	firstOfNext := time.Date(periodEnd.Year(), periodEnd.Month(), 1, 0, 0, 0, 0, periodEnd.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, day-1)
}

// IsActive returns true when the organization may use the platform at all.
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}
