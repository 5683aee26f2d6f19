package identity

import (
	"context"

	"github.com/google/uuid"
)

// OrganizationRepository defines persistence for organizations.
type OrganizationRepository interface {
	// Save persists a new organization
	Save(ctx context.Context, org *Organization) error

	// Update persists changes to an existing organization
	Update(ctx context.Context, org *Organization) error

	// FindByID retrieves an organization by its ID.
	// Returns shared.ErrNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)

	// FindByCode retrieves an organization by its unique code
	FindByCode(ctx context.Context, code string) (*Organization, error)
}
