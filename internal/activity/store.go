// Package activity persists per-region post-count snapshots in 6-hour
// buckets and answers the rolling-average and trend queries the anomaly
// and region-level consumers build their baselines from.
//
// # Thread Safety
//
// Store is safe for concurrent use. The underlying sql.DB serializes
// access, and the snapshot upsert is commutative and idempotent on the
// count column, so concurrent writers targeting the same (bucket, region)
// key cannot undercount a bucket.
//
// This is best-effort telemetry, not a correctness-critical ledger:
// callers on the ingestion path log persistence failures and move on.
package activity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/earlywire/internal/model"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store handles persistence of activity log rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
//
// The database is created if it doesn't exist, and migrations are applied
// automatically.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity_log (
		bucket_ts DATETIME NOT NULL,
		region TEXT NOT NULL,
		post_count INTEGER NOT NULL DEFAULT 0,
		source_count INTEGER NOT NULL DEFAULT 0,
		region_breakdown TEXT,
		platform_breakdown TEXT,
		fetch_duration_ms INTEGER,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (bucket_ts, region)
	);

	CREATE INDEX IF NOT EXISTS idx_activity_region ON activity_log(region, bucket_ts DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Snapshot is one ingestion run's view of a (bucket, region) cell.
type Snapshot struct {
	Region            model.Region
	Bucket            time.Time
	PostCount         int
	SourceCount       int
	RegionBreakdown   map[model.Region]int // aggregate "all" snapshots only
	PlatformBreakdown map[string]int
	FetchDuration     time.Duration
}

// RecordSnapshot upserts the row keyed by (bucket, region).
//
// On conflict the stored count becomes max(existing, incoming) and every
// other field is overwritten. A region is often logged several times per
// bucket from overlapping ingestion runs; the max-merge guarantees a later
// partial snapshot never lowers the recorded count, and makes re-applying
// the same snapshot a no-op beyond refreshing the write timestamp.
func (s *Store) RecordSnapshot(snap Snapshot) error {
	bucket := BucketFor(snap.Bucket)

	regionJSON, err := marshalBreakdown(snap.RegionBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode region breakdown: %w", err)
	}
	platformJSON, err := marshalBreakdown(snap.PlatformBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode platform breakdown: %w", err)
	}

	var fetchMs sql.NullInt64
	if snap.FetchDuration > 0 {
		fetchMs = sql.NullInt64{Int64: snap.FetchDuration.Milliseconds(), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO activity_log (bucket_ts, region, post_count, source_count, region_breakdown, platform_breakdown, fetch_duration_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket_ts, region) DO UPDATE SET
			post_count = MAX(post_count, excluded.post_count),
			source_count = excluded.source_count,
			region_breakdown = excluded.region_breakdown,
			platform_breakdown = excluded.platform_breakdown,
			fetch_duration_ms = excluded.fetch_duration_ms,
			updated_at = excluded.updated_at
	`, bucket, string(snap.Region), snap.PostCount, snap.SourceCount, regionJSON, platformJSON, fetchMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

// RecentLogs returns the most recent rows, bucket descending with region
// as tiebreak.
func (s *Store) RecentLogs(limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT bucket_ts, region, post_count, source_count, region_breakdown, platform_breakdown, fetch_duration_ms, updated_at
		FROM activity_log
		ORDER BY bucket_ts DESC, region ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent logs: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RollingAverages computes, for every real region, the average, minimum
// and maximum post count over the trailing 14 days, plus the sample count
// and the most recent count.
func (s *Store) RollingAverages() (map[model.Region]RollingAverage, error) {
	cutoff := time.Now().UTC().Add(-baselineWindow)

	rows, err := s.db.Query(`
		SELECT bucket_ts, region, post_count, source_count, region_breakdown, platform_breakdown, fetch_duration_ms, updated_at
		FROM activity_log
		WHERE bucket_ts >= ? AND region != ?
		ORDER BY bucket_ts DESC
	`, cutoff, string(model.RegionAll))
	if err != nil {
		return nil, fmt.Errorf("failed to query rolling averages: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	averages := make(map[model.Region]RollingAverage)
	totals := make(map[model.Region]int)
	for _, e := range entries {
		avg, seen := averages[e.Region]
		if !seen {
			// Rows arrive newest first, so the first row per region is the latest.
			avg = RollingAverage{Region: e.Region, Min: e.PostCount, Max: e.PostCount, Latest: e.PostCount}
		}
		if e.PostCount < avg.Min {
			avg.Min = e.PostCount
		}
		if e.PostCount > avg.Max {
			avg.Max = e.PostCount
		}
		avg.Samples++
		totals[e.Region] += e.PostCount
		averages[e.Region] = avg
	}
	for region, avg := range averages {
		avg.Average = float64(totals[region]) / float64(avg.Samples)
		averages[region] = avg
	}

	return averages, nil
}

// Trend returns all rows for a region over the trailing number of days,
// newest first. The pseudo-region model.RegionAll additionally carries the
// breakdown maps used to derive per-region baselines.
func (s *Store) Trend(region model.Region, days int) ([]LogEntry, error) {
	if days <= 0 {
		days = 1
	}
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.db.Query(`
		SELECT bucket_ts, region, post_count, source_count, region_breakdown, platform_breakdown, fetch_duration_ms, updated_at
		FROM activity_log
		WHERE region = ? AND bucket_ts >= ?
		ORDER BY bucket_ts DESC
	`, string(region), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// BaselineAveragesByRegion decomposes the aggregate rows' region breakdown
// maps across the trailing 14 days into one averaged series per real
// region. A region's sample count is the number of aggregate rows whose
// breakdown mentions it; buckets where the region was never attributed
// don't drag the average toward zero.
func (s *Store) BaselineAveragesByRegion() (map[model.Region]RegionBaselineAverage, error) {
	entries, err := s.Trend(model.RegionAll, 14)
	if err != nil {
		return nil, err
	}

	totals := make(map[model.Region]int)
	samples := make(map[model.Region]int)
	for _, e := range entries {
		for region, count := range e.RegionBreakdown {
			totals[region] += count
			samples[region]++
		}
	}

	averages := make(map[model.Region]RegionBaselineAverage, len(totals))
	for region, total := range totals {
		n := samples[region]
		averages[region] = RegionBaselineAverage{
			Region:  region,
			Average: float64(total) / float64(n),
			Samples: n,
		}
	}

	return averages, nil
}

// Prune deletes rows whose bucket is older than the given cutoff and
// returns how many were removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM activity_log WHERE bucket_ts < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity log: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanEntries scans rows into log entries, handling the common scanning logic.
func scanEntries(rows *sql.Rows) ([]LogEntry, error) {
	var entries []LogEntry
	for rows.Next() {
		var (
			e            LogEntry
			region       string
			regionJSON   sql.NullString
			platformJSON sql.NullString
			fetchMs      sql.NullInt64
		)
		err := rows.Scan(
			&e.Bucket,
			&region,
			&e.PostCount,
			&e.SourceCount,
			&regionJSON,
			&platformJSON,
			&fetchMs,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Region = model.Region(region)
		if regionJSON.Valid {
			if err := json.Unmarshal([]byte(regionJSON.String), &e.RegionBreakdown); err != nil {
				return nil, fmt.Errorf("failed to decode region breakdown: %w", err)
			}
		}
		if platformJSON.Valid {
			if err := json.Unmarshal([]byte(platformJSON.String), &e.PlatformBreakdown); err != nil {
				return nil, fmt.Errorf("failed to decode platform breakdown: %w", err)
			}
		}
		if fetchMs.Valid {
			e.FetchDuration = time.Duration(fetchMs.Int64) * time.Millisecond
		}
		entries = append(entries, e)
	}

	// Critical: check for errors from row iteration
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// marshalBreakdown encodes a breakdown map as JSON, mapping empty to NULL.
func marshalBreakdown[K ~string](m map[K]int) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
