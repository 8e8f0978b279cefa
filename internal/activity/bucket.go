package activity

import "time"

// BucketSize is the width of an activity bucket.
const BucketSize = 6 * time.Hour

// baselineWindow is the trailing window used for rolling averages and
// per-region baseline derivation.
const baselineWindow = 14 * 24 * time.Hour

// BucketFor maps an instant to the start of its 6-hour UTC bucket
// (00:00, 06:00, 12:00 or 18:00). Idempotent: BucketFor(BucketFor(t)) ==
// BucketFor(t).
func BucketFor(t time.Time) time.Time {
	t = t.UTC()
	hour := t.Hour() - t.Hour()%6
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
}
