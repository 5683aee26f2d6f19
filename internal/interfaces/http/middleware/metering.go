package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const accumulatorKey = "usage_accumulator"

// UsageApplier applies a request's merged usage deltas to the billing ledger.
type UsageApplier interface {
	Apply(ctx context.Context, organizationID uuid.UUID, deltas []billing.Delta, meta bool) error
}

// applyJob is one drained request waiting to be written to the ledger
type applyJob struct {
	organizationID uuid.UUID
	deltas         []billing.Delta
}

// TrackerConfig holds configuration for the usage tracker
type TrackerConfig struct {
	// Enabled determines if usage tracking is active
	Enabled bool

	// BufferSize is the capacity of the async job buffer
	BufferSize int

	// BatchSize is the number of jobs written per flush
	BatchSize int

	// FlushInterval is how often buffered jobs are flushed
	FlushInterval time.Duration

	// ApplyTimeout bounds one ledger write
	ApplyTimeout time.Duration

	// SkipPaths are request paths that are never metered
	SkipPaths []string

	// Logger for tracking events
	Logger *zap.Logger

	// Metrics records pipeline telemetry; nil disables it
	Metrics *telemetry.MeteringMetrics
}

// DefaultTrackerConfig returns default tracker configuration
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Enabled:       true,
		BufferSize:    4096,
		BatchSize:     64,
		FlushInterval: 2 * time.Second,
		ApplyTimeout:  10 * time.Second,
		SkipPaths:     []string{"/health", "/ready", "/metrics"},
	}
}

// Tracker moves drained request deltas onto the billing ledger without
// blocking the response path. Requests hand their merged deltas to a buffered
// channel; a single writer goroutine batches them and applies each job
// through the ledger service. When the buffer is full the delta is dropped
// and counted, never blocked on.
type Tracker struct {
	applier UsageApplier
	config  TrackerConfig
	logger  *zap.Logger
	metrics *telemetry.MeteringMetrics

	buffer  chan applyJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	dropped uint64
}

// NewTracker creates a new usage tracker
func NewTracker(applier UsageApplier, config TrackerConfig) *Tracker {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}
	if config.ApplyTimeout <= 0 {
		config.ApplyTimeout = 10 * time.Second
	}

	return &Tracker{
		applier: applier,
		config:  config,
		logger:  config.Logger,
		metrics: config.Metrics,
		buffer:  make(chan applyJob, config.BufferSize),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background writer goroutine
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || !t.config.Enabled {
		return
	}
	t.running = true

	t.wg.Add(1)
	go t.batchWriter()

	t.logger.Info("Usage tracker started",
		zap.Int("buffer_size", t.config.BufferSize),
		zap.Int("batch_size", t.config.BatchSize),
		zap.Duration("flush_interval", t.config.FlushInterval),
	)
}

// Stop drains the buffer and stops the writer goroutine
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopCh)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Usage tracker stopped gracefully")
		return nil
	case <-ctx.Done():
		t.logger.Warn("Usage tracker stop timed out, some usage may be lost")
		return ctx.Err()
	}
}

// IsRunning returns whether the tracker is running
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Track enqueues one request's deltas. Returns false when the job was dropped
// because tracking is disabled, stopped, or the buffer is full.
func (t *Tracker) Track(organizationID uuid.UUID, deltas []billing.Delta) bool {
	if !t.config.Enabled || len(deltas) == 0 || organizationID == uuid.Nil {
		return false
	}
	if !t.IsRunning() {
		return false
	}

	select {
	case t.buffer <- applyJob{organizationID: organizationID, deltas: deltas}:
		return true
	default:
		t.mu.Lock()
		t.dropped++
		dropped := t.dropped
		t.mu.Unlock()

		t.metrics.RecordDropped(context.Background(), int64(len(deltas)))
		t.logger.Warn("Usage buffer full, dropping deltas",
			zap.String("organization_id", organizationID.String()),
			zap.Int("delta_count", len(deltas)),
			zap.Uint64("total_dropped", dropped),
		)
		return false
	}
}

// Stats returns buffer occupancy and drop counts for observability
func (t *Tracker) Stats() (buffered int, dropped uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer), t.dropped
}

// batchWriter collects jobs and applies them to the ledger
func (t *Tracker) batchWriter() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]applyJob, 0, t.config.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.applyBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case job := <-t.buffer:
			batch = append(batch, job)
			if len(batch) >= t.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-t.stopCh:
			// Drain remaining jobs before exit
			for {
				select {
				case job := <-t.buffer:
					batch = append(batch, job)
					if len(batch) >= t.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// applyBatch writes one batch of jobs to the ledger
func (t *Tracker) applyBatch(batch []applyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), t.config.ApplyTimeout)
	defer cancel()

	start := time.Now()
	applied := 0
	for _, job := range batch {
		if err := t.applier.Apply(ctx, job.organizationID, job.deltas, false); err != nil {
			t.logger.Error("Failed to apply usage deltas",
				zap.String("organization_id", job.organizationID.String()),
				zap.Int("delta_count", len(job.deltas)),
				zap.Error(err),
			)
			continue
		}
		applied += len(job.deltas)
	}

	t.metrics.RecordDeltas(ctx, int64(applied))
	t.metrics.RecordApplyDuration(ctx, time.Since(start))

	t.logger.Debug("Applied usage batch",
		zap.Int("jobs", len(batch)),
		zap.Int("deltas_applied", applied),
		zap.Duration("duration", time.Since(start)),
	)
}

// Metering returns a middleware that meters every request it wraps. A fresh
// accumulator is attached to the request context for handlers to record into;
// after the response is written the middleware adds the request's compute time
// and response bandwidth, drains the accumulator once, and hands the merged
// deltas to the tracker.
func (t *Tracker) Metering() gin.HandlerFunc {
	skip := make(map[string]struct{}, len(t.config.SkipPaths))
	for _, p := range t.config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if !t.config.Enabled {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		orgID, ok := GetOrganizationID(c)
		if !ok {
			c.Next()
			return
		}

		acc := billing.NewAccumulator()
		c.Set(accumulatorKey, acc)

		start := time.Now()
		c.Next()

		acc.Record(
			billing.NewDelta(billing.FieldComputeSeconds, time.Since(start).Seconds()),
			billing.Delta{Field: billing.FieldBandwidth, Value: billing.BytesInGiB(c.Writer.Size())},
		)

		t.Track(orgID, acc.Drain())
	}
}

// GetAccumulator returns the request's usage accumulator, or nil when the
// metering middleware did not run for this request.
func GetAccumulator(c *gin.Context) *billing.Accumulator {
	v, ok := c.Get(accumulatorKey)
	if !ok {
		return nil
	}
	acc, _ := v.(*billing.Accumulator)
	return acc
}

// RecordUsage records deltas onto the request's accumulator. A no-op when the
// request is not metered, so producers never need a nil check.
func RecordUsage(c *gin.Context, deltas ...billing.Delta) {
	if acc := GetAccumulator(c); acc != nil {
		acc.Record(deltas...)
	}
}

// MeasureSize returns the JSON-serialized size of v in GiB, for producers
// that meter stored or transferred payloads.
func MeasureSize(v any) decimal.Decimal {
	return billing.SizeInGiB(v)
}
