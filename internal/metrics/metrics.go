// Package metrics captures shared operational stats for the pipeline.
package metrics

import "sync/atomic"

// Metrics counts pipeline activity. All methods are safe for concurrent use.
type Metrics struct {
	batches          int64
	itemsDecorated   int64
	anomalousSources int64
	snapshotsWritten int64
	snapshotsFailed  int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	Batches          int64
	ItemsDecorated   int64
	AnomalousSources int64
	SnapshotsWritten int64
	SnapshotsFailed  int64
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// RecordBatch records one decorated batch and how many sources in it were
// flagged anomalous.
func (m *Metrics) RecordBatch(items, anomalous int) {
	atomic.AddInt64(&m.batches, 1)
	atomic.AddInt64(&m.itemsDecorated, int64(items))
	atomic.AddInt64(&m.anomalousSources, int64(anomalous))
}

// RecordSnapshotWrite increments the written/failed counters based on outcome.
func (m *Metrics) RecordSnapshotWrite(err error) {
	if err != nil {
		atomic.AddInt64(&m.snapshotsFailed, 1)
		return
	}
	atomic.AddInt64(&m.snapshotsWritten, 1)
}

// Snapshot returns a read-only view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Batches:          atomic.LoadInt64(&m.batches),
		ItemsDecorated:   atomic.LoadInt64(&m.itemsDecorated),
		AnomalousSources: atomic.LoadInt64(&m.anomalousSources),
		SnapshotsWritten: atomic.LoadInt64(&m.snapshotsWritten),
		SnapshotsFailed:  atomic.LoadInt64(&m.snapshotsFailed),
	}
}
