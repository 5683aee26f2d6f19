package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRateTable_Rate(t *testing.T) {
	table := NewRateTable(map[MeteredField]decimal.Decimal{
		FieldDatabaseOperations: decimal.NewFromFloat(0.001),
		FieldBandwidth:          decimal.NewFromFloat(0.09),
	}, decimal.NewFromInt(40))

	assert.True(t, table.Rate(FieldDatabaseOperations).Equal(decimal.NewFromFloat(0.001)))
	assert.True(t, table.Rate(FieldBandwidth).Equal(decimal.NewFromFloat(0.09)))
	assert.True(t, table.BaseServiceRate.Equal(decimal.NewFromInt(40)))

	// Unconfigured fields accumulate at zero cost rather than failing.
	assert.True(t, table.Rate(FieldComputeSeconds).IsZero())
}

func TestNewRateTableFromFloats(t *testing.T) {
	table := NewRateTableFromFloats(map[string]float64{
		"DATABASE_OPERATIONS": 0.5,
		"CLOUD_UPLOAD_OPS":    0.002,
		"GPU_HOURS":           99, // not a ledger field, skipped
	}, 12.5)

	assert.True(t, table.Rate(FieldDatabaseOperations).Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, table.Rate(FieldCloudUploadOps).Equal(decimal.NewFromFloat(0.002)))
	assert.True(t, table.BaseServiceRate.Equal(decimal.NewFromFloat(12.5)))
	assert.True(t, table.Rate(MeteredField("GPU_HOURS")).IsZero())
}
