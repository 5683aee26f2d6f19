package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsageAggregate(t *testing.T) {
	agg, err := NewUsageAggregate(Period("2026-08"))

	require.NoError(t, err)
	assert.Len(t, agg.Values, len(AllMeteredFields))
	for _, f := range AllMeteredFields {
		assert.True(t, agg.Value(f).IsZero())
	}
}

func TestUsageAggregate_Share(t *testing.T) {
	agg, _ := NewUsageAggregate(Period("2026-08"))

	t.Run("returns the organization's fraction", func(t *testing.T) {
		agg.Add(FieldDatabaseOperations, decimal.NewFromInt(1000))

		share := agg.Share(FieldDatabaseOperations, decimal.NewFromInt(250))
		assert.True(t, share.Equal(decimal.NewFromFloat(0.25)), share.String())
	})

	t.Run("zero aggregate yields zero share", func(t *testing.T) {
		share := agg.Share(FieldBandwidth, decimal.NewFromInt(10))
		assert.True(t, share.IsZero())
	})
}
