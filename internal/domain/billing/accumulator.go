package billing

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Delta is a single usage increment produced during a request.
// Value may be negative only for stock fields (a deletion); the accumulator
// passes values through unmodified either way.
type Delta struct {
	Field MeteredField
	Value decimal.Decimal
}

// NewDelta builds a delta from a float value, the unit producers work in.
func NewDelta(field MeteredField, value float64) Delta {
	return Delta{Field: field, Value: decimal.NewFromFloat(value)}
}

// Accumulator collects usage deltas over the lifetime of one request.
// Record never fails and performs no I/O; nothing leaves the accumulator
// until the post-response flush drains it. Drain is one-shot: the latch
// guarantees deltas are handed over at most once per request, even when both
// the completion and abnormal-close paths fire.
type Accumulator struct {
	mu      sync.Mutex
	deltas  []Delta
	drained bool
}

// NewAccumulator creates an empty request-scoped accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{deltas: make([]Delta, 0, 8)}
}

// Record appends deltas to the request's list. Field names are not validated
// here; the ledger ignores fields it does not carry.
func (a *Accumulator) Record(deltas ...Delta) {
	a.mu.Lock()
	a.deltas = append(a.deltas, deltas...)
	a.mu.Unlock()
}

// Drain returns the merged deltas exactly once. Subsequent calls return nil.
// Deltas for the same field are combined so the flush issues one increment
// per field.
func (a *Accumulator) Drain() []Delta {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		return nil
	}
	a.drained = true

	if len(a.deltas) == 0 {
		return nil
	}

	merged := make(map[MeteredField]decimal.Decimal, len(a.deltas))
	order := make([]MeteredField, 0, len(a.deltas))
	for _, d := range a.deltas {
		if _, seen := merged[d.Field]; !seen {
			order = append(order, d.Field)
		}
		merged[d.Field] = merged[d.Field].Add(d.Value)
	}

	out := make([]Delta, 0, len(order))
	for _, f := range order {
		out = append(out, Delta{Field: f, Value: merged[f]})
	}
	return out
}

// Len returns the number of recorded deltas so far.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deltas)
}

// Drained reports whether the accumulator has already been flushed.
func (a *Accumulator) Drained() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drained
}
