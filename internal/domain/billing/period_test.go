package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	t.Run("parses a month key", func(t *testing.T) {
		p, err := ParsePeriod("2026-08")

		require.NoError(t, err)
		assert.Equal(t, Period("2026-08"), p)
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		for _, s := range []string{"2026", "2026-13", "08-2026", "not-a-period", ""} {
			_, err := ParsePeriod(s)
			assert.Error(t, err, s)
		}
	})
}

func TestPeriod_Bounds(t *testing.T) {
	p := Period("2026-02")

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), p.End())
}

func TestPeriod_Navigation(t *testing.T) {
	p := Period("2026-01")

	assert.Equal(t, Period("2025-12"), p.Previous())
	assert.Equal(t, Period("2026-02"), p.Next())
	assert.True(t, p.Previous().Before(p))
	assert.False(t, p.Before(p))
}

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, Period("2026-08"), PeriodOf(time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)))
}
