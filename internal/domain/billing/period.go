package billing

import (
	"time"

	"github.com/edusuite/backend/internal/domain/shared"
)

// periodLayout is the calendar-month key format used as the ledger's time partition.
const periodLayout = "2006-01"

// Period is a calendar-month bucket identifying one billing period.
type Period string

// PeriodOf returns the billing period containing the given time.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(periodLayout))
}

// CurrentPeriod returns the billing period for the current month.
func CurrentPeriod() Period {
	return PeriodOf(time.Now())
}

// ParsePeriod validates and parses a period key like "2026-08".
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", shared.NewDomainError("INVALID_PERIOD", "Billing period must look like YYYY-MM")
	}
	return Period(s), nil
}

// String returns the period key
func (p Period) String() string {
	return string(p)
}

// IsValid returns true if the period parses as a month key
func (p Period) IsValid() bool {
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}

// Start returns the first instant of the period
func (p Period) Start() time.Time {
	t, _ := time.Parse(periodLayout, string(p))
	return t
}

// End returns the last instant of the period
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Previous returns the preceding calendar month
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Next returns the following calendar month
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// Before reports whether p is strictly earlier than other
func (p Period) Before(other Period) bool {
	return p.Start().Before(other.Start())
}
