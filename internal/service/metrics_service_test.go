package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCountersAndSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveProjection(120, 3, true)
	m.ObserveProjection(4, 1, false)
	m.RecordEdit("update_points")
	m.ObserveDBQuery("gradebook_get", 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.whatIfTruncated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edits.WithLabelValues("update_points")))
	assert.InDelta(t, 2.0/3, testutil.ToFloat64(m.cacheHitRatio), 1e-9)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.Equal(t, uint64(2), snap.Projections)
	assert.Equal(t, uint64(1), snap.DBQueryCount)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordEdit("x")
		m.ObserveProjection(1, 1, false)
		m.RecordExport("csv", "FINISHED")
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}
