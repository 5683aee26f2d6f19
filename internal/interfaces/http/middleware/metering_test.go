package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type appliedCall struct {
	organizationID uuid.UUID
	deltas         []billing.Delta
	meta           bool
}

// mockApplier records every Apply call. When block is set, Apply waits on it
// before recording, letting tests hold the writer goroutine mid-batch.
type mockApplier struct {
	mu      sync.Mutex
	applies []appliedCall
	block   chan struct{}
}

func (m *mockApplier) Apply(_ context.Context, organizationID uuid.UUID, deltas []billing.Delta, meta bool) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies = append(m.applies, appliedCall{organizationID: organizationID, deltas: deltas, meta: meta})
	return nil
}

func (m *mockApplier) calls() []appliedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]appliedCall, len(m.applies))
	copy(out, m.applies)
	return out
}

func setupMeteringRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func testOrgID() uuid.UUID {
	return uuid.MustParse("11111111-1111-1111-1111-111111111111")
}

func fastTrackerConfig() TrackerConfig {
	cfg := DefaultTrackerConfig()
	cfg.Logger = zap.NewNop()
	cfg.FlushInterval = 20 * time.Millisecond
	return cfg
}

func stopTracker(t *testing.T, tracker *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracker.Stop(ctx))
}

func TestDefaultTrackerConfig(t *testing.T) {
	cfg := DefaultTrackerConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4096, cfg.BufferSize)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Contains(t, cfg.SkipPaths, "/health")
	assert.Contains(t, cfg.SkipPaths, "/metrics")
}

func TestTrackerStartStop(t *testing.T) {
	tracker := NewTracker(&mockApplier{}, fastTrackerConfig())

	assert.False(t, tracker.IsRunning())

	tracker.Start()
	assert.True(t, tracker.IsRunning())

	// Starting again is a no-op
	tracker.Start()
	assert.True(t, tracker.IsRunning())

	stopTracker(t, tracker)
	assert.False(t, tracker.IsRunning())

	// Stopping again is a no-op
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tracker.Stop(ctx))
}

func TestTrackerAppliesDeltas(t *testing.T) {
	applier := &mockApplier{}
	tracker := NewTracker(applier, fastTrackerConfig())
	tracker.Start()
	defer stopTracker(t, tracker)

	deltas := []billing.Delta{
		{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(3)},
	}
	assert.True(t, tracker.Track(testOrgID(), deltas))

	require.Eventually(t, func() bool {
		return len(applier.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	call := applier.calls()[0]
	assert.Equal(t, testOrgID(), call.organizationID)
	assert.False(t, call.meta)
	require.Len(t, call.deltas, 1)
	assert.True(t, call.deltas[0].Value.Equal(decimal.NewFromInt(3)))
}

func TestTrackerDrainsOnStop(t *testing.T) {
	applier := &mockApplier{}
	cfg := fastTrackerConfig()
	cfg.FlushInterval = 10 * time.Second
	tracker := NewTracker(applier, cfg)
	tracker.Start()

	for i := 0; i < 5; i++ {
		assert.True(t, tracker.Track(testOrgID(), []billing.Delta{
			{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(1)},
		}))
	}

	stopTracker(t, tracker)
	assert.Len(t, applier.calls(), 5)
}

func TestTrackerRejectsWhenStopped(t *testing.T) {
	tracker := NewTracker(&mockApplier{}, fastTrackerConfig())

	ok := tracker.Track(testOrgID(), []billing.Delta{
		{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(1)},
	})
	assert.False(t, ok)
}

func TestTrackerRejectsEmptyAndNilOrg(t *testing.T) {
	tracker := NewTracker(&mockApplier{}, fastTrackerConfig())
	tracker.Start()
	defer stopTracker(t, tracker)

	assert.False(t, tracker.Track(testOrgID(), nil))
	assert.False(t, tracker.Track(uuid.Nil, []billing.Delta{
		{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(1)},
	}))
}

func TestTrackerDropsWhenBufferFull(t *testing.T) {
	applier := &mockApplier{block: make(chan struct{})}
	cfg := fastTrackerConfig()
	cfg.BufferSize = 1
	cfg.BatchSize = 1
	cfg.FlushInterval = 10 * time.Second

	tracker := NewTracker(applier, cfg)
	tracker.Start()
	defer func() {
		close(applier.block)
		stopTracker(t, tracker)
	}()

	delta := []billing.Delta{{Field: billing.FieldDatabaseOperations, Value: decimal.NewFromInt(1)}}

	// First job is picked up by the writer and parks in the blocked applier.
	assert.True(t, tracker.Track(testOrgID(), delta))
	require.Eventually(t, func() bool {
		buffered, _ := tracker.Stats()
		return buffered == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Second job fills the buffer; third must be dropped.
	assert.True(t, tracker.Track(testOrgID(), delta))
	assert.False(t, tracker.Track(testOrgID(), delta))

	_, dropped := tracker.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestMeteringMiddlewareFlushesRequestUsage(t *testing.T) {
	applier := &mockApplier{}
	tracker := NewTracker(applier, fastTrackerConfig())
	tracker.Start()
	defer stopTracker(t, tracker)

	router := setupMeteringRouter()
	router.Use(OrganizationID())
	router.Use(tracker.Metering())
	router.GET("/things", func(c *gin.Context) {
		RecordUsage(c, billing.NewDelta(billing.FieldDatabaseOperations, 2))
		RecordUsage(c, billing.NewDelta(billing.FieldDatabaseOperations, 3))

		payload := gin.H{"ok": true}
		RecordUsage(c, billing.Delta{Field: billing.FieldCloudStorageStored, Value: MeasureSize(payload)})
		c.JSON(http.StatusOK, payload)
	})

	req := httptest.NewRequest(http.MethodGet, "/things", nil)
	req.Header.Set(OrganizationIDHeader, testOrgID().String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return len(applier.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	call := applier.calls()[0]
	assert.Equal(t, testOrgID(), call.organizationID)

	byField := make(map[billing.MeteredField]decimal.Decimal)
	for _, d := range call.deltas {
		byField[d.Field] = d.Value
	}

	// Same-field deltas are merged before the flush.
	assert.True(t, byField[billing.FieldDatabaseOperations].Equal(decimal.NewFromInt(5)))

	// The measured payload size lands on the field the producer chose.
	assert.True(t, byField[billing.FieldCloudStorageStored].GreaterThan(decimal.Zero))

	// The middleware adds compute time and response bandwidth on its own.
	assert.True(t, byField[billing.FieldComputeSeconds].GreaterThanOrEqual(decimal.Zero))
	assert.True(t, byField[billing.FieldBandwidth].GreaterThan(decimal.Zero))
}

func TestMeteringMiddlewareSkipsConfiguredPaths(t *testing.T) {
	applier := &mockApplier{}
	tracker := NewTracker(applier, fastTrackerConfig())
	tracker.Start()
	defer stopTracker(t, tracker)

	router := setupMeteringRouter()
	router.Use(tracker.Metering())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(OrganizationIDHeader, testOrgID().String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, applier.calls())
}

func TestMeteringMiddlewareWithoutOrganization(t *testing.T) {
	applier := &mockApplier{}
	tracker := NewTracker(applier, fastTrackerConfig())
	tracker.Start()
	defer stopTracker(t, tracker)

	router := setupMeteringRouter()
	router.Use(tracker.Metering())
	router.GET("/things", func(c *gin.Context) {
		// Recording without an accumulator must be a harmless no-op.
		RecordUsage(c, billing.NewDelta(billing.FieldDatabaseOperations, 1))
		assert.Nil(t, GetAccumulator(c))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/things", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, applier.calls())
}
