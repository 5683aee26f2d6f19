package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	t.Run("creates freemium organization", func(t *testing.T) {
		org, err := NewOrganization("greenfield", "Greenfield Academy", 30)

		require.NoError(t, err)
		assert.Equal(t, "GREENFIELD", org.Code)
		assert.Equal(t, PlanFreemium, org.Plan)
		assert.Equal(t, OrganizationStatusActive, org.Status)
		require.NotNil(t, org.FreemiumUntil)
		assert.True(t, org.FreemiumUntil.After(time.Now()))
		assert.Equal(t, 5, org.BillingDay)
	})

	t.Run("fails with empty code", func(t *testing.T) {
		org, err := NewOrganization("  ", "Greenfield Academy", 30)

		assert.Error(t, err)
		assert.Nil(t, org)
	})

	t.Run("fails with non-positive freemium window", func(t *testing.T) {
		org, err := NewOrganization("greenfield", "Greenfield Academy", 0)

		assert.Error(t, err)
		assert.Nil(t, org)
	})
}

func TestOrganization_Upgrade(t *testing.T) {
	org, err := NewOrganization("greenfield", "Greenfield Academy", 30)
	require.NoError(t, err)

	org.Upgrade()

	assert.Equal(t, PlanPremium, org.Plan)
	// upgrading keeps the freemium window as a billing grace
	assert.NotNil(t, org.FreemiumUntil)
}

func TestOrganization_FreemiumCovers(t *testing.T) {
	org, _ := NewOrganization("greenfield", "Greenfield Academy", 30)

	assert.True(t, org.FreemiumCovers(time.Now()))
	assert.False(t, org.FreemiumCovers(time.Now().AddDate(0, 2, 0)))

	org.FreemiumUntil = nil
	assert.False(t, org.FreemiumCovers(time.Now()))
}

func TestOrganization_BillingDateFor(t *testing.T) {
	org, _ := NewOrganization("greenfield", "Greenfield Academy", 30)
	org.BillingDay = 10

	periodEnd := time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC)
	due := org.BillingDateFor(periodEnd)

	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), due)
}
