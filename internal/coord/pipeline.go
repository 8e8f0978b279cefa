// Package coord runs the per-batch decoration pipeline and the background
// activity logging that feeds the rate baselines.
package coord

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/earlywire/internal/activity"
	"github.com/abelbrown/earlywire/internal/anomaly"
	"github.com/abelbrown/earlywire/internal/cascade"
	"github.com/abelbrown/earlywire/internal/logging"
	"github.com/abelbrown/earlywire/internal/metrics"
	"github.com/abelbrown/earlywire/internal/model"
)

// writeTimeout bounds each background activity-log write.
const writeTimeout = 30 * time.Second

// maxConcurrentWrites limits parallel snapshot upserts per batch.
const maxConcurrentWrites = 4

// snapshotStore is the activity persistence the pipeline writes through.
// Interface for dependency injection (testing).
type snapshotStore interface {
	RecordSnapshot(snap activity.Snapshot) error
}

// Pipeline decorates item batches and logs their activity.
//
// The decoration path (anomaly profiles, cascade badges, display ranking)
// is synchronous and pure per batch. The activity-log write is
// fire-and-forget: it runs concurrently with, or after, decoration and
// its outcome is never awaited by the response path.
type Pipeline struct {
	store   snapshotStore
	metrics *metrics.Metrics
	limiter *rate.Limiter
	wg      sync.WaitGroup

	mu         sync.RWMutex
	detector   *anomaly.Detector
	classifier *cascade.Classifier
}

// NewPipeline creates a pipeline around the given store and components.
// The metrics sink is optional (nil to disable counting).
func NewPipeline(store snapshotStore, det *anomaly.Detector, cls *cascade.Classifier, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:      store,
		metrics:    m,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), maxConcurrentWrites),
		detector:   det,
		classifier: cls,
	}
}

// Reload swaps in components built from fresh configuration. In-flight
// batches keep the components they started with.
func (p *Pipeline) Reload(det *anomaly.Detector, cls *cascade.Classifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detector = det
	p.classifier = cls
}

func (p *Pipeline) components() (*anomaly.Detector, *cascade.Classifier) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.detector, p.classifier
}

// Process decorates a batch and returns it in display order. The activity
// snapshot derived from the batch is persisted in the background; a
// persistence failure is logged and never surfaces here.
//
// The input slice is not modified.
func (p *Pipeline) Process(ctx context.Context, items []model.Item, fetchDuration time.Duration) []model.Item {
	batchID := uuid.NewString()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logActivity(batchID, items, fetchDuration)
	}()

	det, cls := p.components()

	profiles := det.Evaluate(items)
	decorated := anomaly.Attach(items, profiles)
	decorated = cls.ClassifyAll(decorated)
	ranked := cls.RankForDisplay(decorated)

	anomalous := 0
	for _, profile := range profiles {
		if profile.Anomalous {
			anomalous++
		}
	}
	if p.metrics != nil {
		p.metrics.RecordBatch(len(items), anomalous)
	}
	logging.Debug("batch decorated",
		"batch", batchID,
		"items", len(items),
		"sources", len(profiles),
		"anomalous", anomalous)

	return ranked
}

// Close waits for pending background writes to finish. Call during
// shutdown; Process must not be called afterwards.
func (p *Pipeline) Close() {
	p.wg.Wait()
}

// logActivity derives per-bucket snapshots from the batch and upserts
// them. Deliberately detached from the request context: the response path
// owes these writes nothing.
func (p *Pipeline) logActivity(batchID string, items []model.Item, fetchDuration time.Duration) {
	if p.store == nil || len(items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	snapshots := deriveSnapshots(items, fetchDuration)

	var g errgroup.Group
	g.SetLimit(maxConcurrentWrites)
	for _, snap := range snapshots {
		g.Go(func() error {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil
			}
			err := p.store.RecordSnapshot(snap)
			if p.metrics != nil {
				p.metrics.RecordSnapshotWrite(err)
			}
			if err != nil {
				logging.Warn("activity snapshot failed",
					"batch", batchID,
					"bucket", snap.Bucket,
					"region", snap.Region,
					"error", err)
			}
			return nil // never fail the group - errors reported per-snapshot
		})
	}
	_ = g.Wait()
}

// deriveSnapshots groups the batch into (bucket, region) cells plus one
// aggregate cell per bucket carrying the breakdown maps the per-region
// baselines are later decomposed from.
func deriveSnapshots(items []model.Item, fetchDuration time.Duration) []activity.Snapshot {
	type cell struct {
		count     int
		sources   map[string]struct{}
		platforms map[string]int
		regions   map[model.Region]int
	}
	buckets := make(map[time.Time]map[model.Region]*cell)

	touch := func(bucket time.Time, region model.Region) *cell {
		regions, ok := buckets[bucket]
		if !ok {
			regions = make(map[model.Region]*cell)
			buckets[bucket] = regions
		}
		c, ok := regions[region]
		if !ok {
			c = &cell{
				sources:   make(map[string]struct{}),
				platforms: make(map[string]int),
			}
			if region == model.RegionAll {
				c.regions = make(map[model.Region]int)
			}
			regions[region] = c
		}
		return c
	}

	for _, it := range items {
		bucket := activity.BucketFor(it.Published)

		c := touch(bucket, it.Region)
		c.count++
		c.platforms[it.Platform]++
		if it.Source != nil {
			c.sources[it.Source.ID] = struct{}{}
		}

		agg := touch(bucket, model.RegionAll)
		agg.count++
		agg.platforms[it.Platform]++
		agg.regions[it.Region]++
		if it.Source != nil {
			agg.sources[it.Source.ID] = struct{}{}
		}
	}

	var snapshots []activity.Snapshot
	for bucket, regions := range buckets {
		for region, c := range regions {
			snapshots = append(snapshots, activity.Snapshot{
				Region:            region,
				Bucket:            bucket,
				PostCount:         c.count,
				SourceCount:       len(c.sources),
				RegionBreakdown:   c.regions,
				PlatformBreakdown: c.platforms,
				FetchDuration:     fetchDuration,
			})
		}
	}
	return snapshots
}
