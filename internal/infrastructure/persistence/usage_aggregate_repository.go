package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageAggregateModel is the GORM model for platform-wide per-period usage
// totals. One row per period; fields are accumulated with SQL increments the
// same way ledger entries are.
type UsageAggregateModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Period string    `gorm:"type:varchar(7);not null;uniqueIndex"`

	DatabaseOperations     decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseDataTransfer   decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseStorageBackup  decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	ComputeSeconds         decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	Bandwidth              decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageStored     decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageDownloaded decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudUploadOps         decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudDownloadOps       decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	BaseServiceCost        decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`

	Version   int       `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the model
func (UsageAggregateModel) TableName() string {
	return "usage_aggregates"
}

// aggregateColumns maps metered fields to their aggregate column names.
var aggregateColumns = map[billing.MeteredField]string{
	billing.FieldDatabaseOperations:       "database_operations",
	billing.FieldDatabaseDataTransfer:     "database_data_transfer",
	billing.FieldDatabaseStorageAndBackup: "database_storage_backup",
	billing.FieldComputeSeconds:           "compute_seconds",
	billing.FieldBandwidth:                "bandwidth",
	billing.FieldCloudStorageStored:       "cloud_storage_stored",
	billing.FieldCloudStorageDownloaded:   "cloud_storage_downloaded",
	billing.FieldCloudUploadOps:           "cloud_upload_ops",
	billing.FieldCloudDownloadOps:         "cloud_download_ops",
	billing.FieldBaseServiceCost:          "base_service_cost",
}

// ToEntity converts the model to a domain entity
func (m *UsageAggregateModel) ToEntity() *billing.UsageAggregate {
	return &billing.UsageAggregate{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		Period: billing.Period(m.Period),
		Values: map[billing.MeteredField]decimal.Decimal{
			billing.FieldDatabaseOperations:       m.DatabaseOperations,
			billing.FieldDatabaseDataTransfer:     m.DatabaseDataTransfer,
			billing.FieldDatabaseStorageAndBackup: m.DatabaseStorageBackup,
			billing.FieldComputeSeconds:           m.ComputeSeconds,
			billing.FieldBandwidth:                m.Bandwidth,
			billing.FieldCloudStorageStored:       m.CloudStorageStored,
			billing.FieldCloudStorageDownloaded:   m.CloudStorageDownloaded,
			billing.FieldCloudUploadOps:           m.CloudUploadOps,
			billing.FieldCloudDownloadOps:         m.CloudDownloadOps,
			billing.FieldBaseServiceCost:          m.BaseServiceCost,
		},
	}
}

// UsageAggregateRepository implements the billing.AggregateRepository interface
type UsageAggregateRepository struct {
	db *gorm.DB
}

// NewUsageAggregateRepository creates a new usage aggregate repository
func NewUsageAggregateRepository(db *gorm.DB) *UsageAggregateRepository {
	return &UsageAggregateRepository{db: db}
}

// FindByPeriod retrieves the platform aggregate for a billing period
func (r *UsageAggregateRepository) FindByPeriod(ctx context.Context, period billing.Period) (*billing.UsageAggregate, error) {
	var model UsageAggregateModel
	err := r.db.WithContext(ctx).
		Where("period = ?", string(period)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// AddUsage accumulates deltas into the period's aggregate row, creating it on
// first use. The upsert increments existing columns by the inserted values, so
// concurrent writers from any number of connections never lose a delta.
func (r *UsageAggregateRepository) AddUsage(ctx context.Context, period billing.Period, deltas []billing.Delta) error {
	if len(deltas) == 0 {
		return nil
	}

	model := &UsageAggregateModel{
		ID:     uuid.New(),
		Period: string(period),
	}

	assignments := make(map[string]interface{}, len(deltas)+1)
	seeded := false
	for _, d := range deltas {
		col, ok := aggregateColumns[d.Field]
		if !ok {
			continue
		}
		seeded = true
		setColumn(model, d.Field, d.Value)
		assignments[col] = gorm.Expr(col+" + excluded."+col)
	}
	if !seeded {
		return nil
	}
	assignments["updated_at"] = time.Now()

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "period"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(model).Error
}

// setColumn seeds one field's initial value on a fresh aggregate row.
func setColumn(m *UsageAggregateModel, field billing.MeteredField, value decimal.Decimal) {
	switch field {
	case billing.FieldDatabaseOperations:
		m.DatabaseOperations = value
	case billing.FieldDatabaseDataTransfer:
		m.DatabaseDataTransfer = value
	case billing.FieldDatabaseStorageAndBackup:
		m.DatabaseStorageBackup = value
	case billing.FieldComputeSeconds:
		m.ComputeSeconds = value
	case billing.FieldBandwidth:
		m.Bandwidth = value
	case billing.FieldCloudStorageStored:
		m.CloudStorageStored = value
	case billing.FieldCloudStorageDownloaded:
		m.CloudStorageDownloaded = value
	case billing.FieldCloudUploadOps:
		m.CloudUploadOps = value
	case billing.FieldCloudDownloadOps:
		m.CloudDownloadOps = value
	case billing.FieldBaseServiceCost:
		m.BaseServiceCost = value
	}
}

// Ensure UsageAggregateRepository implements the interface
var _ billing.AggregateRepository = (*UsageAggregateRepository)(nil)
