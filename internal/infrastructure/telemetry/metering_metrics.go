package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// MeteringMetrics holds the metrics of the usage metering pipeline.
type MeteringMetrics struct {
	deltasRecorded *Counter
	deltasDropped  *Counter
	applyDuration  *Histogram
	gateDecisions  *Counter
}

// NewMeteringMetrics creates the metering pipeline metrics on the given meter.
func NewMeteringMetrics(meter metric.Meter) (*MeteringMetrics, error) {
	deltasRecorded, err := NewCounter(meter,
		"metering.deltas.recorded",
		"Usage deltas applied to the billing ledger",
		"{delta}",
	)
	if err != nil {
		return nil, err
	}

	deltasDropped, err := NewCounter(meter,
		"metering.deltas.dropped",
		"Usage deltas dropped because the pipeline buffer was full",
		"{delta}",
	)
	if err != nil {
		return nil, err
	}

	applyDuration, err := NewHistogram(meter,
		"metering.apply.duration",
		"Time spent applying one batch of usage deltas",
		"s",
	)
	if err != nil {
		return nil, err
	}

	gateDecisions, err := NewCounter(meter,
		"metering.gate.decisions",
		"Subscription gate decisions by resolved state",
		"{decision}",
	)
	if err != nil {
		return nil, err
	}

	return &MeteringMetrics{
		deltasRecorded: deltasRecorded,
		deltasDropped:  deltasDropped,
		applyDuration:  applyDuration,
		gateDecisions:  gateDecisions,
	}, nil
}

// RecordDeltas counts deltas successfully handed to the ledger.
func (m *MeteringMetrics) RecordDeltas(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.deltasRecorded.Add(ctx, n)
}

// RecordDropped counts deltas lost to backpressure.
func (m *MeteringMetrics) RecordDropped(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.deltasDropped.Add(ctx, n)
}

// RecordApplyDuration records the latency of one ledger apply.
func (m *MeteringMetrics) RecordApplyDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.applyDuration.RecordDuration(ctx, d)
}

// RecordGateDecision counts one gate evaluation by its resolved state.
func (m *MeteringMetrics) RecordGateDecision(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.gateDecisions.Inc(ctx, AttrGateState.String(state))
}
