package persistence

import (
	"context"
	"errors"

	"github.com/edusuite/backend/internal/domain/identity"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrganizationRepository implements the identity.OrganizationRepository
// interface. Organizations are simple enough to persist directly without a
// separate persistence model.
type OrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Save persists a new organization
func (r *OrganizationRepository) Save(ctx context.Context, org *identity.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

// Update updates an existing organization
func (r *OrganizationRepository) Update(ctx context.Context, org *identity.Organization) error {
	return r.db.WithContext(ctx).Save(org).Error
}

// FindByID retrieves an organization by its ID
func (r *OrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Organization, error) {
	var org identity.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// FindByCode retrieves an organization by its unique code
func (r *OrganizationRepository) FindByCode(ctx context.Context, code string) (*identity.Organization, error) {
	var org identity.Organization
	if err := r.db.WithContext(ctx).First(&org, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// Ensure OrganizationRepository implements the interface
var _ identity.OrganizationRepository = (*OrganizationRepository)(nil)
