package billing

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_Record(t *testing.T) {
	t.Run("appends without validation or failure", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record(NewDelta(FieldDatabaseOperations, 1))
		acc.Record(NewDelta(MeteredField("UNKNOWN"), 5), NewDelta(FieldBandwidth, 0.25))

		assert.Equal(t, 3, acc.Len())
	})

	t.Run("passes negative values through unmodified", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record(NewDelta(FieldCloudStorageStored, -0.5))

		deltas := acc.Drain()
		require.Len(t, deltas, 1)
		assert.True(t, deltas[0].Value.Equal(decimal.NewFromFloat(-0.5)))
	})
}

func TestAccumulator_Drain(t *testing.T) {
	t.Run("merges deltas per field", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record(NewDelta(FieldDatabaseOperations, 2))
		acc.Record(NewDelta(FieldBandwidth, 0.5))
		acc.Record(NewDelta(FieldDatabaseOperations, 3))

		deltas := acc.Drain()
		require.Len(t, deltas, 2)
		assert.Equal(t, FieldDatabaseOperations, deltas[0].Field)
		assert.True(t, deltas[0].Value.Equal(decimal.NewFromInt(5)))
		assert.Equal(t, FieldBandwidth, deltas[1].Field)
	})

	t.Run("second drain returns nothing", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record(NewDelta(FieldDatabaseOperations, 1))

		first := acc.Drain()
		second := acc.Drain()

		assert.Len(t, first, 1)
		assert.Nil(t, second)
		assert.True(t, acc.Drained())
	})

	t.Run("empty accumulator drains to nil but latches", func(t *testing.T) {
		acc := NewAccumulator()

		assert.Nil(t, acc.Drain())
		assert.True(t, acc.Drained())
	})

	t.Run("concurrent drains deliver deltas exactly once", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record(NewDelta(FieldDatabaseOperations, 1))

		var wg sync.WaitGroup
		results := make([][]Delta, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = acc.Drain()
			}(i)
		}
		wg.Wait()

		delivered := 0
		for _, r := range results {
			if r != nil {
				delivered++
			}
		}
		assert.Equal(t, 1, delivered)
	})
}
