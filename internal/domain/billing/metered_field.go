package billing

import "fmt"

// MeteredField identifies one metered quantity on a ledger entry.
type MeteredField string

const (
	// FieldDatabaseOperations counts database read/write operations
	FieldDatabaseOperations MeteredField = "DATABASE_OPERATIONS"

	// FieldDatabaseDataTransfer measures payload bytes moved to/from the database, in GiB
	FieldDatabaseDataTransfer MeteredField = "DATABASE_DATA_TRANSFER"

	// FieldDatabaseStorageAndBackup measures data currently stored (plus backups), in GiB
	FieldDatabaseStorageAndBackup MeteredField = "DATABASE_STORAGE_AND_BACKUP"

	// FieldComputeSeconds measures request compute time in seconds
	FieldComputeSeconds MeteredField = "COMPUTE_SECONDS"

	// FieldBandwidth measures response bytes served, in GiB
	FieldBandwidth MeteredField = "BANDWIDTH"

	// FieldCloudStorageStored measures object-storage bytes currently stored, in GiB
	FieldCloudStorageStored MeteredField = "CLOUD_STORAGE_STORED"

	// FieldCloudStorageDownloaded measures object-storage bytes downloaded, in GiB
	FieldCloudStorageDownloaded MeteredField = "CLOUD_STORAGE_DOWNLOADED"

	// FieldCloudUploadOps counts object-storage upload operations
	FieldCloudUploadOps MeteredField = "CLOUD_UPLOAD_OPS"

	// FieldCloudDownloadOps counts object-storage download operations
	FieldCloudDownloadOps MeteredField = "CLOUD_DOWNLOAD_OPS"

	// FieldBaseServiceCost is the flat platform service charge bucket
	FieldBaseServiceCost MeteredField = "BASE_SERVICE_COST"
)

// AllMeteredFields lists every field a ledger entry carries, in a stable order.
var AllMeteredFields = []MeteredField{
	FieldDatabaseOperations,
	FieldDatabaseDataTransfer,
	FieldDatabaseStorageAndBackup,
	FieldComputeSeconds,
	FieldBandwidth,
	FieldCloudStorageStored,
	FieldCloudStorageDownloaded,
	FieldCloudUploadOps,
	FieldCloudDownloadOps,
	FieldBaseServiceCost,
}

// String returns the string representation of MeteredField
func (f MeteredField) String() string {
	return string(f)
}

// IsValid returns true if the field is one of the enumerated ledger fields
func (f MeteredField) IsValid() bool {
	switch f {
	case FieldDatabaseOperations,
		FieldDatabaseDataTransfer,
		FieldDatabaseStorageAndBackup,
		FieldComputeSeconds,
		FieldBandwidth,
		FieldCloudStorageStored,
		FieldCloudStorageDownloaded,
		FieldCloudUploadOps,
		FieldCloudDownloadOps,
		FieldBaseServiceCost:
		return true
	}
	return false
}

// IsStock returns true for fields that represent standing state. Stock fields
// carry over to the next billing period on rollover and may legitimately
// decrease when stored data is deleted.
func (f MeteredField) IsStock() bool {
	return f == FieldDatabaseStorageAndBackup || f == FieldCloudStorageStored
}

// IsFlow returns true for fields that represent activity within a period.
// Flow fields reset to zero on rollover and participate in retroactive
// proportional allocation.
func (f MeteredField) IsFlow() bool {
	return f.IsValid() && !f.IsStock() && f != FieldBaseServiceCost
}

// AllowsNegative reports whether a negative delta is acceptable for the field.
// Only stock fields shrink; flow fields are monotonic within a period.
func (f MeteredField) AllowsNegative() bool {
	return f.IsStock()
}

// DisplayName returns a human-readable name for the field
func (f MeteredField) DisplayName() string {
	switch f {
	case FieldDatabaseOperations:
		return "Database Operations"
	case FieldDatabaseDataTransfer:
		return "Database Data Transfer"
	case FieldDatabaseStorageAndBackup:
		return "Database Storage & Backup"
	case FieldComputeSeconds:
		return "Compute Time"
	case FieldBandwidth:
		return "Bandwidth"
	case FieldCloudStorageStored:
		return "Cloud Storage Stored"
	case FieldCloudStorageDownloaded:
		return "Cloud Storage Downloaded"
	case FieldCloudUploadOps:
		return "Cloud Upload Operations"
	case FieldCloudDownloadOps:
		return "Cloud Download Operations"
	case FieldBaseServiceCost:
		return "Base Service"
	default:
		return string(f)
	}
}

// ParseMeteredField parses a string into a MeteredField
func ParseMeteredField(s string) (MeteredField, error) {
	f := MeteredField(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid metered field: %s", s)
	}
	return f, nil
}
