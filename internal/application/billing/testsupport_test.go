package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// In-memory repositories mirroring the persistence contracts, including the
// atomic-increment semantics of AddUsage.

type memLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]*billing.LedgerEntry
	failAdd error
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{entries: make(map[string]*billing.LedgerEntry)}
}

func ledgerKey(org uuid.UUID, period billing.Period, tier billing.Tier) string {
	return fmt.Sprintf("%s|%s|%s", org, period, tier)
}

func (r *memLedgerRepo) CreateIfAbsent(_ context.Context, entry *billing.LedgerEntry) (*billing.LedgerEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ledgerKey(entry.OrganizationID, entry.Period, entry.Tier)
	if existing, ok := r.entries[key]; ok {
		return existing, false, nil
	}
	r.entries[key] = entry
	return entry, true, nil
}

func (r *memLedgerRepo) FindByKey(_ context.Context, org uuid.UUID, period billing.Period, tier billing.Tier) (*billing.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[ledgerKey(org, period, tier)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

func (r *memLedgerRepo) FindLatestByOrganization(_ context.Context, org uuid.UUID) (*billing.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *billing.LedgerEntry
	for _, e := range r.entries {
		if e.OrganizationID != org {
			continue
		}
		if latest == nil || latest.Period.Before(e.Period) {
			latest = e
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	return latest, nil
}

func (r *memLedgerRepo) AddUsage(_ context.Context, org uuid.UUID, period billing.Period, tier billing.Tier, deltas []billing.Delta, rates *billing.RateTable) error {
	if r.failAdd != nil {
		return r.failAdd
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[ledgerKey(org, period, tier)]
	if !ok {
		return shared.ErrNotFound
	}
	for _, d := range deltas {
		entry.ApplyDelta(d.Field, d.Value, rates.Rate(d.Field))
	}
	return nil
}

func (r *memLedgerRepo) Update(_ context.Context, entry *billing.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[ledgerKey(entry.OrganizationID, entry.Period, entry.Tier)] = entry
	return nil
}

func (r *memLedgerRepo) ListByPeriod(_ context.Context, period billing.Period) ([]*billing.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.LedgerEntry
	for _, e := range r.entries {
		if e.Period == period {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) CountByPeriod(ctx context.Context, period billing.Period) (int64, error) {
	entries, _ := r.ListByPeriod(ctx, period)
	return int64(len(entries)), nil
}

type memAggregateRepo struct {
	mu         sync.Mutex
	aggregates map[billing.Period]*billing.UsageAggregate
}

func newMemAggregateRepo() *memAggregateRepo {
	return &memAggregateRepo{aggregates: make(map[billing.Period]*billing.UsageAggregate)}
}

func (r *memAggregateRepo) FindByPeriod(_ context.Context, period billing.Period) (*billing.UsageAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggregates[period]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return agg, nil
}

func (r *memAggregateRepo) AddUsage(_ context.Context, period billing.Period, deltas []billing.Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.aggregates[period]
	if !ok {
		agg, _ = billing.NewUsageAggregate(period)
		r.aggregates[period] = agg
	}
	for _, d := range deltas {
		agg.Add(d.Field, d.Value)
	}
	return nil
}

type memOrgRepo struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*identity.Organization
}

func newMemOrgRepo() *memOrgRepo {
	return &memOrgRepo{orgs: make(map[uuid.UUID]*identity.Organization)}
}

func (r *memOrgRepo) Save(_ context.Context, org *identity.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.ID] = org
	return nil
}

func (r *memOrgRepo) Update(ctx context.Context, org *identity.Organization) error {
	return r.Save(ctx, org)
}

func (r *memOrgRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return org, nil
}

func (r *memOrgRepo) FindByCode(_ context.Context, code string) (*identity.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, org := range r.orgs {
		if org.Code == code {
			return org, nil
		}
	}
	return nil, shared.ErrNotFound
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) NotifyOwner(_ context.Context, subject, _ string) {
	n.mu.Lock()
	n.subjects = append(n.subjects, subject)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}
