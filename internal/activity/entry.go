package activity

import (
	"time"

	"github.com/abelbrown/earlywire/internal/model"
)

// LogEntry is one row of the activity log: the post count observed for a
// region within a single 6-hour bucket. There is at most one row per
// (bucket, region) pair; repeated snapshots of the same bucket merge into
// it and never lower the recorded count.
type LogEntry struct {
	Bucket            time.Time
	Region            model.Region
	PostCount         int
	SourceCount       int
	RegionBreakdown   map[model.Region]int // populated only on the aggregate "all" row
	PlatformBreakdown map[string]int
	FetchDuration     time.Duration // zero when the ingestion run did not report one
	UpdatedAt         time.Time
}

// RollingAverage is a derived, read-only view over the trailing window of
// log rows for one region. Never stored; always recomputed from the log.
type RollingAverage struct {
	Region  model.Region
	Average float64
	Min     int
	Max     int
	Samples int
	Latest  int
}

// RegionBaselineAverage is the per-region posting baseline decomposed from
// the aggregate row's breakdown maps. Deriving baselines from the "all"
// rows rather than from separate per-region logging avoids double-counting
// items attributable to more than one region.
type RegionBaselineAverage struct {
	Region  model.Region
	Average float64
	Samples int
}
