package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerEntryModel is the GORM model for billing ledger entries. Every metered
// field is a dedicated pair of numeric columns so usage can be accumulated with
// plain SQL increments instead of read-modify-write on a serialized blob.
type LedgerEntryModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_org_period_tier"`
	Period         string    `gorm:"type:varchar(7);not null;uniqueIndex:idx_ledger_org_period_tier;index"`
	Tier           string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_ledger_org_period_tier"`
	BillingStatus  string    `gorm:"type:varchar(20);not null;default:'NOT_BILLED'"`
	PaymentStatus  string    `gorm:"type:varchar(20);not null;default:'UNPAID'"`

	DatabaseOperationsValue       decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseOperationsCost        decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseDataTransferValue     decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseDataTransferCost      decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseStorageBackupValue    decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	DatabaseStorageBackupCost     decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	ComputeSecondsValue           decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	ComputeSecondsCost            decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	BandwidthValue                decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	BandwidthCost                 decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageStoredValue       decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageStoredCost        decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageDownloadedValue   decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudStorageDownloadedCost    decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudUploadOpsValue           decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudUploadOpsCost            decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudDownloadOpsValue         decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CloudDownloadOpsCost          decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	BaseServiceCostValue          decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	BaseServiceCostCost           decimal.Decimal `gorm:"column:base_service_cost_cost;type:numeric(24,9);not null;default:0"`

	FeaturesToCharge string          `gorm:"type:jsonb;default:'[]'"`
	TotalCost        decimal.Decimal `gorm:"type:numeric(24,9);not null;default:0"`
	CurrencyRate     decimal.Decimal `gorm:"type:numeric(24,9);not null;default:1"`
	BilledAt         *time.Time
	Version          int       `gorm:"not null;default:1"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for the model
func (LedgerEntryModel) TableName() string {
	return "billing_ledger_entries"
}

// fieldColumns maps each metered field to its value/cost column pair. The map
// is the single source of truth for the increment SQL; both column names are
// fixed identifiers, never user input.
var fieldColumns = map[billing.MeteredField]struct{ value, cost string }{
	billing.FieldDatabaseOperations:       {"database_operations_value", "database_operations_cost"},
	billing.FieldDatabaseDataTransfer:     {"database_data_transfer_value", "database_data_transfer_cost"},
	billing.FieldDatabaseStorageAndBackup: {"database_storage_backup_value", "database_storage_backup_cost"},
	billing.FieldComputeSeconds:           {"compute_seconds_value", "compute_seconds_cost"},
	billing.FieldBandwidth:                {"bandwidth_value", "bandwidth_cost"},
	billing.FieldCloudStorageStored:       {"cloud_storage_stored_value", "cloud_storage_stored_cost"},
	billing.FieldCloudStorageDownloaded:   {"cloud_storage_downloaded_value", "cloud_storage_downloaded_cost"},
	billing.FieldCloudUploadOps:           {"cloud_upload_ops_value", "cloud_upload_ops_cost"},
	billing.FieldCloudDownloadOps:         {"cloud_download_ops_value", "cloud_download_ops_cost"},
	billing.FieldBaseServiceCost:          {"base_service_cost_value", "base_service_cost_cost"},
}

// ToEntity converts the model to a domain entity
func (m *LedgerEntryModel) ToEntity() *billing.LedgerEntry {
	usage := map[billing.MeteredField]billing.FieldUsage{
		billing.FieldDatabaseOperations:       {Value: m.DatabaseOperationsValue, CostInDollar: m.DatabaseOperationsCost},
		billing.FieldDatabaseDataTransfer:     {Value: m.DatabaseDataTransferValue, CostInDollar: m.DatabaseDataTransferCost},
		billing.FieldDatabaseStorageAndBackup: {Value: m.DatabaseStorageBackupValue, CostInDollar: m.DatabaseStorageBackupCost},
		billing.FieldComputeSeconds:           {Value: m.ComputeSecondsValue, CostInDollar: m.ComputeSecondsCost},
		billing.FieldBandwidth:                {Value: m.BandwidthValue, CostInDollar: m.BandwidthCost},
		billing.FieldCloudStorageStored:       {Value: m.CloudStorageStoredValue, CostInDollar: m.CloudStorageStoredCost},
		billing.FieldCloudStorageDownloaded:   {Value: m.CloudStorageDownloadedValue, CostInDollar: m.CloudStorageDownloadedCost},
		billing.FieldCloudUploadOps:           {Value: m.CloudUploadOpsValue, CostInDollar: m.CloudUploadOpsCost},
		billing.FieldCloudDownloadOps:         {Value: m.CloudDownloadOpsValue, CostInDollar: m.CloudDownloadOpsCost},
		billing.FieldBaseServiceCost:          {Value: m.BaseServiceCostValue, CostInDollar: m.BaseServiceCostCost},
	}

	var features []billing.FeatureCharge
	if m.FeaturesToCharge != "" {
		_ = json.Unmarshal([]byte(m.FeaturesToCharge), &features)
	}
	if features == nil {
		features = make([]billing.FeatureCharge, 0)
	}

	return &billing.LedgerEntry{
		OrganizationAggregateRoot: shared.OrganizationAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			OrganizationID: m.OrganizationID,
		},
		Period:           billing.Period(m.Period),
		Tier:             billing.Tier(m.Tier),
		BillingStatus:    billing.BillingStatus(m.BillingStatus),
		PaymentStatus:    billing.PaymentStatus(m.PaymentStatus),
		Usage:            usage,
		FeaturesToCharge: features,
		TotalCost:        m.TotalCost,
		CurrencyRate:     m.CurrencyRate,
		BilledAt:         m.BilledAt,
	}
}

// LedgerEntryModelFromEntity creates a model from a domain entity
func LedgerEntryModelFromEntity(e *billing.LedgerEntry) *LedgerEntryModel {
	features, err := json.Marshal(e.FeaturesToCharge)
	if err != nil {
		features = []byte("[]")
	}

	return &LedgerEntryModel{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Period:         string(e.Period),
		Tier:           string(e.Tier),
		BillingStatus:  string(e.BillingStatus),
		PaymentStatus:  string(e.PaymentStatus),

		DatabaseOperationsValue:     e.FieldValue(billing.FieldDatabaseOperations),
		DatabaseOperationsCost:      e.FieldCost(billing.FieldDatabaseOperations),
		DatabaseDataTransferValue:   e.FieldValue(billing.FieldDatabaseDataTransfer),
		DatabaseDataTransferCost:    e.FieldCost(billing.FieldDatabaseDataTransfer),
		DatabaseStorageBackupValue:  e.FieldValue(billing.FieldDatabaseStorageAndBackup),
		DatabaseStorageBackupCost:   e.FieldCost(billing.FieldDatabaseStorageAndBackup),
		ComputeSecondsValue:         e.FieldValue(billing.FieldComputeSeconds),
		ComputeSecondsCost:          e.FieldCost(billing.FieldComputeSeconds),
		BandwidthValue:              e.FieldValue(billing.FieldBandwidth),
		BandwidthCost:               e.FieldCost(billing.FieldBandwidth),
		CloudStorageStoredValue:     e.FieldValue(billing.FieldCloudStorageStored),
		CloudStorageStoredCost:      e.FieldCost(billing.FieldCloudStorageStored),
		CloudStorageDownloadedValue: e.FieldValue(billing.FieldCloudStorageDownloaded),
		CloudStorageDownloadedCost:  e.FieldCost(billing.FieldCloudStorageDownloaded),
		CloudUploadOpsValue:         e.FieldValue(billing.FieldCloudUploadOps),
		CloudUploadOpsCost:          e.FieldCost(billing.FieldCloudUploadOps),
		CloudDownloadOpsValue:       e.FieldValue(billing.FieldCloudDownloadOps),
		CloudDownloadOpsCost:        e.FieldCost(billing.FieldCloudDownloadOps),
		BaseServiceCostValue:        e.FieldValue(billing.FieldBaseServiceCost),
		BaseServiceCostCost:         e.FieldCost(billing.FieldBaseServiceCost),

		FeaturesToCharge: string(features),
		TotalCost:        e.TotalCost,
		CurrencyRate:     e.CurrencyRate,
		BilledAt:         e.BilledAt,
		Version:          e.Version,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// LedgerRepository implements the billing.LedgerRepository interface
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateIfAbsent inserts the entry unless one already exists for the same
// organization, period and tier. The unique index arbitrates concurrent
// first-events; the loser's insert becomes a no-op and the winner's row is
// returned.
func (r *LedgerRepository) CreateIfAbsent(ctx context.Context, entry *billing.LedgerEntry) (*billing.LedgerEntry, bool, error) {
	model := LedgerEntryModelFromEntity(entry)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "period"},
				{Name: "tier"},
			},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return entry, true, nil
	}

	existing, err := r.FindByKey(ctx, entry.OrganizationID, entry.Period, entry.Tier)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByKey retrieves the entry for one organization, period and tier
func (r *LedgerRepository) FindByKey(ctx context.Context, organizationID uuid.UUID, period billing.Period, tier billing.Tier) (*billing.LedgerEntry, error) {
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("period = ?", string(period)).
		Where("tier = ?", string(tier)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindLatestByOrganization retrieves the organization's most recent entry
// across all periods and tiers, the rollover source for a new period.
func (r *LedgerRepository) FindLatestByOrganization(ctx context.Context, organizationID uuid.UUID) (*billing.LedgerEntry, error) {
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("period DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// AddUsage accumulates deltas into an existing entry with a single UPDATE.
// Each field's value column is incremented and its cost column re-snapshotted
// as (value + delta) * rate; all SET expressions read the pre-update row, so
// concurrent increments from different connections serialize in the database
// and none are lost.
func (r *LedgerRepository) AddUsage(ctx context.Context, organizationID uuid.UUID, period billing.Period, tier billing.Tier, deltas []billing.Delta, rates *billing.RateTable) error {
	if len(deltas) == 0 {
		return nil
	}

	updates := make(map[string]interface{}, len(deltas)*2+1)
	for _, d := range deltas {
		cols, ok := fieldColumns[d.Field]
		if !ok {
			continue
		}
		updates[cols.value] = gorm.Expr(cols.value+" + ?", d.Value)
		updates[cols.cost] = gorm.Expr("("+cols.value+" + ?) * ?", d.Value, rates.Rate(d.Field))
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Where("organization_id = ?", organizationID).
		Where("period = ?", string(period)).
		Where("tier = ?", string(tier)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Update persists billing and payment state changes on an existing entry
func (r *LedgerRepository) Update(ctx context.Context, entry *billing.LedgerEntry) error {
	model := LedgerEntryModelFromEntity(entry)
	return r.db.WithContext(ctx).Save(model).Error
}

// ListByPeriod retrieves every entry of a billing period
func (r *LedgerRepository) ListByPeriod(ctx context.Context, period billing.Period) ([]*billing.LedgerEntry, error) {
	var models []LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("period = ?", string(period)).
		Order("organization_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*billing.LedgerEntry, len(models))
	for i := range models {
		entries[i] = models[i].ToEntity()
	}
	return entries, nil
}

// CountByPeriod counts the entries of a billing period
func (r *LedgerRepository) CountByPeriod(ctx context.Context, period billing.Period) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Where("period = ?", string(period)).
		Count(&count).Error
	return count, err
}

// Ensure LedgerRepository implements the interface
var _ billing.LedgerRepository = (*LedgerRepository)(nil)
