package activity

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abelbrown/earlywire/internal/model"
)

// newTestStore creates a store backed by a temp-dir database.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "midnight stays",
			in:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "morning floors to 06",
			in:   time.Date(2026, 3, 14, 11, 59, 59, 0, time.UTC),
			want: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "afternoon floors to 12",
			in:   time.Date(2026, 3, 14, 17, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "evening floors to 18",
			in:   time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input is bucketed on the UTC clock",
			in:   time.Date(2026, 3, 14, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)),
			want: time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketFor(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("BucketFor(%v) = %v, want %v", tt.in, got, tt.want)
			}
			// Flooring is idempotent.
			if again := BucketFor(got); !again.Equal(got) {
				t.Errorf("BucketFor not idempotent: %v -> %v", got, again)
			}
		})
	}
}

func TestRecordSnapshotMaxMerge(t *testing.T) {
	store := newTestStore(t)
	bucket := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

	// Overlapping runs report 5, then 3, then 7 for the same cell. The
	// stored count must end at the max regardless of arrival order.
	for _, count := range []int{5, 3, 7} {
		err := store.RecordSnapshot(Snapshot{
			Region:    model.RegionUkraine,
			Bucket:    bucket.Add(17 * time.Minute), // mid-bucket timestamps land in the same row
			PostCount: count,
		})
		if err != nil {
			t.Fatalf("RecordSnapshot(%d) failed: %v", count, err)
		}
	}

	entries, err := store.RecentLogs(10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(entries))
	}
	if entries[0].PostCount != 7 {
		t.Errorf("PostCount = %d, want 7 (max of 5, 3, 7)", entries[0].PostCount)
	}
	if !entries[0].Bucket.Equal(bucket) {
		t.Errorf("Bucket = %v, want floored %v", entries[0].Bucket, bucket)
	}

	// Re-applying the max is a no-op on the count.
	if err := store.RecordSnapshot(Snapshot{Region: model.RegionUkraine, Bucket: bucket, PostCount: 7}); err != nil {
		t.Fatalf("RecordSnapshot replay failed: %v", err)
	}
	entries, err = store.RecentLogs(10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 1 || entries[0].PostCount != 7 {
		t.Errorf("Replay changed state: %+v", entries)
	}
}

func TestRecordSnapshotConcurrent(t *testing.T) {
	store := newTestStore(t)
	bucket := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(count int) {
			defer wg.Done()
			err := store.RecordSnapshot(Snapshot{
				Region:    model.RegionTaiwan,
				Bucket:    bucket,
				PostCount: count,
			})
			if err != nil {
				t.Errorf("Concurrent RecordSnapshot(%d) failed: %v", count, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := store.RecentLogs(10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 row after concurrent writes, got %d", len(entries))
	}
	if entries[0].PostCount != 20 {
		t.Errorf("PostCount = %d, want 20 regardless of interleaving", entries[0].PostCount)
	}
}

func TestRecordSnapshotBreakdowns(t *testing.T) {
	store := newTestStore(t)
	bucket := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	snap := Snapshot{
		Region:      model.RegionAll,
		Bucket:      bucket,
		PostCount:   12,
		SourceCount: 4,
		RegionBreakdown: map[model.Region]int{
			model.RegionUkraine:    8,
			model.RegionMiddleEast: 4,
		},
		PlatformBreakdown: map[string]int{
			"bluesky":  9,
			"telegram": 3,
		},
		FetchDuration: 1500 * time.Millisecond,
	}
	if err := store.RecordSnapshot(snap); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	entries, err := store.RecentLogs(1)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(entries))
	}
	got := entries[0]
	if diff := cmp.Diff(snap.RegionBreakdown, got.RegionBreakdown); diff != "" {
		t.Errorf("Region breakdown mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.PlatformBreakdown, got.PlatformBreakdown); diff != "" {
		t.Errorf("Platform breakdown mismatch (-want +got):\n%s", diff)
	}
	if got.FetchDuration != snap.FetchDuration {
		t.Errorf("FetchDuration = %v, want %v", got.FetchDuration, snap.FetchDuration)
	}
	if got.SourceCount != 4 {
		t.Errorf("SourceCount = %d, want 4", got.SourceCount)
	}
}

func TestRecentLogsOrdering(t *testing.T) {
	store := newTestStore(t)
	older := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	writes := []Snapshot{
		{Region: model.RegionUkraine, Bucket: older, PostCount: 1},
		{Region: model.RegionSahel, Bucket: newer, PostCount: 2},
		{Region: model.RegionCaucasus, Bucket: newer, PostCount: 3},
	}
	for _, snap := range writes {
		if err := store.RecordSnapshot(snap); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	entries, err := store.RecentLogs(10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	var got []model.Region
	for _, e := range entries {
		got = append(got, e.Region)
	}
	// Newest bucket first, region name as tiebreak within a bucket.
	want := []model.Region{model.RegionCaucasus, model.RegionSahel, model.RegionUkraine}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Ordering mismatch (-want +got):\n%s", diff)
	}

	entries, err = store.RecentLogs(2)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected limit of 2 rows, got %d", len(entries))
	}
}

func TestRollingAverages(t *testing.T) {
	store := newTestStore(t)
	latest := BucketFor(time.Now().UTC())

	// Three recent buckets for ukraine, one for sahel, one aggregate row
	// that must be excluded, and one ukraine row outside the 14-day window.
	writes := []Snapshot{
		{Region: model.RegionUkraine, Bucket: latest.Add(-12 * time.Hour), PostCount: 10},
		{Region: model.RegionUkraine, Bucket: latest.Add(-6 * time.Hour), PostCount: 2},
		{Region: model.RegionUkraine, Bucket: latest, PostCount: 6},
		{Region: model.RegionSahel, Bucket: latest, PostCount: 4},
		{Region: model.RegionAll, Bucket: latest, PostCount: 100},
		{Region: model.RegionUkraine, Bucket: latest.Add(-15 * 24 * time.Hour), PostCount: 500},
	}
	for _, snap := range writes {
		if err := store.RecordSnapshot(snap); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	averages, err := store.RollingAverages()
	if err != nil {
		t.Fatalf("RollingAverages failed: %v", err)
	}

	ua, ok := averages[model.RegionUkraine]
	if !ok {
		t.Fatal("Expected ukraine in averages")
	}
	if ua.Samples != 3 {
		t.Errorf("ukraine samples = %d, want 3 (stale row excluded)", ua.Samples)
	}
	if ua.Average != 6.0 {
		t.Errorf("ukraine average = %v, want 6.0", ua.Average)
	}
	if ua.Min != 2 || ua.Max != 10 {
		t.Errorf("ukraine min/max = %d/%d, want 2/10", ua.Min, ua.Max)
	}
	if ua.Latest != 6 {
		t.Errorf("ukraine latest = %d, want 6", ua.Latest)
	}

	if _, ok := averages[model.RegionAll]; ok {
		t.Error("Aggregate pseudo-region must not appear in rolling averages")
	}
	if sa := averages[model.RegionSahel]; sa.Samples != 1 || sa.Average != 4.0 {
		t.Errorf("sahel = %+v, want 1 sample averaging 4.0", sa)
	}
}

func TestTrend(t *testing.T) {
	store := newTestStore(t)
	latest := BucketFor(time.Now().UTC())

	for i := 0; i < 4; i++ {
		err := store.RecordSnapshot(Snapshot{
			Region:    model.RegionKorea,
			Bucket:    latest.Add(-time.Duration(i) * 6 * time.Hour),
			PostCount: i + 1,
		})
		if err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}
	// Different region, must not leak into the trend.
	if err := store.RecordSnapshot(Snapshot{Region: model.RegionUkraine, Bucket: latest, PostCount: 99}); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	entries, err := store.Trend(model.RegionKorea, 14)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Bucket.After(entries[i-1].Bucket) {
			t.Errorf("Trend not newest-first at index %d", i)
		}
	}
	if entries[0].PostCount != 1 {
		t.Errorf("Newest row PostCount = %d, want 1", entries[0].PostCount)
	}

	// A one-day window keeps only the buckets from the last 24 hours.
	entries, err = store.Trend(model.RegionKorea, 1)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if len(entries) != 4 {
		// latest, -6h, -12h, -18h are all within 24h of now
		t.Errorf("Expected 4 rows within one day, got %d", len(entries))
	}
}

func TestBaselineAveragesByRegion(t *testing.T) {
	store := newTestStore(t)
	latest := BucketFor(time.Now().UTC())

	// Two aggregate rows. Ukraine appears in both, taiwan in one: taiwan's
	// average must only divide by the buckets that mention it.
	writes := []Snapshot{
		{
			Region:    model.RegionAll,
			Bucket:    latest.Add(-6 * time.Hour),
			PostCount: 14,
			RegionBreakdown: map[model.Region]int{
				model.RegionUkraine: 10,
				model.RegionTaiwan:  4,
			},
		},
		{
			Region:    model.RegionAll,
			Bucket:    latest,
			PostCount: 6,
			RegionBreakdown: map[model.Region]int{
				model.RegionUkraine: 6,
			},
		},
	}
	for _, snap := range writes {
		if err := store.RecordSnapshot(snap); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	averages, err := store.BaselineAveragesByRegion()
	if err != nil {
		t.Fatalf("BaselineAveragesByRegion failed: %v", err)
	}

	want := map[model.Region]RegionBaselineAverage{
		model.RegionUkraine: {Region: model.RegionUkraine, Average: 8.0, Samples: 2},
		model.RegionTaiwan:  {Region: model.RegionTaiwan, Average: 4.0, Samples: 1},
	}
	if diff := cmp.Diff(want, averages); diff != "" {
		t.Errorf("Baseline averages mismatch (-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	now := BucketFor(time.Now().UTC())

	for i := 0; i < 6; i++ {
		err := store.RecordSnapshot(Snapshot{
			Region:    model.RegionCaucasus,
			Bucket:    now.Add(-time.Duration(i*10) * 24 * time.Hour),
			PostCount: 1,
		})
		if err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	removed, err := store.Prune(now.Add(-25 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Pruned %d rows, want 3", removed)
	}

	entries, err := store.RecentLogs(100)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 surviving rows, got %d", len(entries))
	}
}

func TestRecentLogsEmpty(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.RecentLogs(10)
	if err != nil {
		t.Fatalf("RecentLogs on empty store failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no rows, got %d", len(entries))
	}
}

func TestDistinctRegionsShareBucket(t *testing.T) {
	store := newTestStore(t)
	bucket := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

	for i, region := range model.Regions() {
		err := store.RecordSnapshot(Snapshot{Region: region, Bucket: bucket, PostCount: i + 1})
		if err != nil {
			t.Fatalf("RecordSnapshot(%s) failed: %v", region, err)
		}
	}

	entries, err := store.RecentLogs(100)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != len(model.Regions()) {
		t.Fatalf("Expected %d rows (one per region), got %d", len(model.Regions()), len(entries))
	}
	seen := make(map[model.Region]bool)
	for _, e := range entries {
		if seen[e.Region] {
			t.Errorf("Region %s appears twice in one bucket", e.Region)
		}
		seen[e.Region] = true
	}
}

func ExampleBucketFor() {
	ts := time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)
	fmt.Println(BucketFor(ts).Format(time.RFC3339))
	// Output: 2026-03-14T12:00:00Z
}
