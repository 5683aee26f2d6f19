package billing

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	ledgers    *memLedgerRepo
	aggregates *memAggregateRepo
	orgs       *memOrgRepo
	notifier   *recordingNotifier
	rates      *billing.RateTable
	ownerID    uuid.UUID
	service    *GateService
	now        time.Time
	previous   billing.Period
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		ledgers:    newMemLedgerRepo(),
		aggregates: newMemAggregateRepo(),
		orgs:       newMemOrgRepo(),
		notifier:   &recordingNotifier{},
		rates: billing.NewRateTable(map[billing.MeteredField]decimal.Decimal{
			billing.FieldDatabaseOperations: decimal.NewFromInt(40),
		}, decimal.NewFromInt(10)),
		ownerID: uuid.New(),
		now:     time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
	}
	f.previous = billing.PeriodOf(f.now).Previous()

	allocator := NewAllocatorService(f.ledgers, f.aggregates, f.rates, f.ownerID, nil)
	allocator.now = func() time.Time { return f.now }

	f.service = NewGateService(f.orgs, f.ledgers, f.aggregates, allocator, f.notifier, nil)
	f.service.now = func() time.Time { return f.now }
	return f
}

// premiumOrg returns a premium organization whose freemium window closed well
// before the lookback period.
func (f *gateFixture) premiumOrg(t *testing.T) *identity.Organization {
	t.Helper()
	org, err := identity.NewOrganization("RIVERDALE", "Riverdale Academy", 30)
	require.NoError(t, err)
	org.Upgrade()
	expired := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	org.FreemiumUntil = &expired
	require.NoError(t, f.orgs.Save(context.Background(), org))
	return org
}

func (f *gateFixture) previousEntry(t *testing.T, org uuid.UUID, opsValue int64) *billing.LedgerEntry {
	t.Helper()
	entry, err := billing.NewLedgerEntry(org, f.previous, billing.TierPremium, decimal.NewFromInt(1))
	require.NoError(t, err)
	entry.ApplyDelta(billing.FieldDatabaseOperations, decimal.NewFromInt(opsValue), decimal.Zero)
	_, _, err = f.ledgers.CreateIfAbsent(context.Background(), entry)
	require.NoError(t, err)
	return entry
}

func TestGateService_Evaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown organization is denied and the owner notified", func(t *testing.T) {
		f := newGateFixture(t)

		decision, err := f.service.Evaluate(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GateNoSubscription, decision.State)
		assert.Equal(t, http.StatusForbidden, decision.HTTPStatus)
		assert.Equal(t, 1, f.notifier.count())
	})

	t.Run("freemium inside the window passes", func(t *testing.T) {
		f := newGateFixture(t)
		org, err := identity.NewOrganization("HILLTOP", "Hilltop School", 30)
		require.NoError(t, err)
		until := f.now.AddDate(0, 0, 10)
		org.FreemiumUntil = &until
		require.NoError(t, f.orgs.Save(ctx, org))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, GateFreemiumActive, decision.State)
	})

	t.Run("expired freemium is asked to upgrade", func(t *testing.T) {
		f := newGateFixture(t)
		org, err := identity.NewOrganization("HILLTOP", "Hilltop School", 30)
		require.NoError(t, err)
		expired := f.now.AddDate(0, 0, -1)
		org.FreemiumUntil = &expired
		require.NoError(t, f.orgs.Save(ctx, org))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GateFreemiumExpired, decision.State)
		assert.Equal(t, http.StatusPaymentRequired, decision.HTTPStatus)
	})

	t.Run("recent upgrade is graced while freemium still covers the lookback", func(t *testing.T) {
		f := newGateFixture(t)
		org, err := identity.NewOrganization("RIVERDALE", "Riverdale Academy", 30)
		require.NoError(t, err)
		org.Upgrade()
		until := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
		org.FreemiumUntil = &until
		require.NoError(t, f.orgs.Save(ctx, org))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, GatePremiumGraced, decision.State)
	})

	t.Run("premium with no previous entry is clear", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, GatePremiumClear, decision.State)
	})

	t.Run("unbilled previous entry before the billing date is clear", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)
		org.BillingDay = 20
		f.previousEntry(t, org.ID, 100)

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, GatePremiumClear, decision.State)
	})

	t.Run("unbilled past the billing date is recalculated then denied", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)
		f.previousEntry(t, org.ID, 250)
		require.NoError(t, f.aggregates.AddUsage(ctx, f.previous, []billing.Delta{
			{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(1000)},
		}))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GatePremiumNeedsBilling, decision.State)
		assert.Equal(t, http.StatusPaymentRequired, decision.HTTPStatus)
		assert.Equal(t, "RECALCULATED", decision.Code)

		entry, err := f.ledgers.FindByKey(ctx, org.ID, f.previous, billing.TierPremium)
		require.NoError(t, err)
		assert.True(t, entry.IsBilled())
		// 250/1000 of the $40 rate plus the full base share.
		assert.True(t, entry.FieldCost(billing.FieldDatabaseOperations).Equal(decimal.NewFromInt(10)))

		// The recalculated month is billed but unpaid, so the next request is
		// denied for payment rather than re-billed.
		decision, err = f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GatePremiumUnpaid, decision.State)
	})

	t.Run("missing aggregate for an unbilled month alerts the owner", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)
		f.previousEntry(t, org.ID, 250)

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GatePremiumNeedsBilling, decision.State)
		assert.Equal(t, http.StatusInternalServerError, decision.HTTPStatus)
		assert.Equal(t, "MISSING_AGGREGATE", decision.Code)
		assert.Equal(t, 1, f.notifier.count())

		entry, err := f.ledgers.FindByKey(ctx, org.ID, f.previous, billing.TierPremium)
		require.NoError(t, err)
		assert.False(t, entry.IsBilled())
	})

	t.Run("billed and paid previous month is clear", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)
		entry := f.previousEntry(t, org.ID, 100)
		entry.MarkBilled(f.now.AddDate(0, 0, -5))
		require.NoError(t, entry.SetPaymentStatus(billing.PaymentStatusPaid))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, GatePremiumClear, decision.State)
	})

	t.Run("billed but unpaid previous month is denied", func(t *testing.T) {
		f := newGateFixture(t)
		org := f.premiumOrg(t)
		entry := f.previousEntry(t, org.ID, 100)
		entry.MarkBilled(f.now.AddDate(0, 0, -5))

		decision, err := f.service.Evaluate(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, GatePremiumUnpaid, decision.State)
		assert.Equal(t, http.StatusPaymentRequired, decision.HTTPStatus)
	})
}
