// Package anomaly flags sources posting far above their expected rate
// within the current evaluation window.
package anomaly

import (
	"math"

	"github.com/abelbrown/earlywire/internal/model"
)

// DefaultDailyRate is the conservative posts/day fallback used when a
// source's declared baseline is missing, non-positive, or looks like a
// hand-entered guess.
const DefaultDailyRate = 3.0

// Config tunes the detector. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// WindowHours is the width of the evaluation window the caller
	// pre-filtered the batch to.
	WindowHours float64
	// RatioThreshold is the observed/expected multiple at which a source
	// is considered anomalous.
	RatioThreshold float64
	// MinObserved suppresses noise from low-volume sources where a single
	// extra post produces a huge ratio.
	MinObserved int
}

// DefaultConfig returns the standard 6-hour window tuning.
func DefaultConfig() Config {
	return Config{
		WindowHours:    6,
		RatioThreshold: 2.5,
		MinObserved:    3,
	}
}

// Detector evaluates per-source posting rates against their baselines.
// Pure given a batch; safe to share across concurrent batches.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given tuning.
func NewDetector(cfg Config) *Detector {
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = DefaultConfig().WindowHours
	}
	if cfg.RatioThreshold <= 0 {
		cfg.RatioThreshold = DefaultConfig().RatioThreshold
	}
	if cfg.MinObserved <= 0 {
		cfg.MinObserved = DefaultConfig().MinObserved
	}
	return &Detector{cfg: cfg}
}

// EffectiveBaseline resolves the posts/day rate to trust for expectation
// math. Declared rates that were empirically measured are used as-is, and
// so are non-integer rates: decimals only come out of actual rate
// measurement. Round unmeasured numbers are catalog guesses and are
// replaced with the conservative default, as is anything missing or
// non-positive.
func EffectiveBaseline(b model.Baseline) float64 {
	if b.PostsPerDay <= 0 {
		return DefaultDailyRate
	}
	if b.Measured {
		return b.PostsPerDay
	}
	if b.PostsPerDay != math.Trunc(b.PostsPerDay) {
		return b.PostsPerDay
	}
	return DefaultDailyRate
}

// Evaluate groups the batch by source and computes an activity profile per
// source. Items without a source reference are excluded. The caller is
// responsible for pre-filtering the batch to the evaluation window.
func (d *Detector) Evaluate(items []model.Item) map[string]model.SourceActivityProfile {
	observed := make(map[string]int)
	baselines := make(map[string]model.Baseline)
	for _, it := range items {
		if it.Source == nil || it.Source.ID == "" {
			continue
		}
		observed[it.Source.ID]++
		baselines[it.Source.ID] = it.Source.Baseline
	}

	profiles := make(map[string]model.SourceActivityProfile, len(observed))
	for id, count := range observed {
		effective := EffectiveBaseline(baselines[id])
		expected := effective * d.cfg.WindowHours / 24

		var ratio float64
		if expected > 0 {
			ratio = math.Round(float64(count)/expected*10) / 10
		}

		profiles[id] = model.SourceActivityProfile{
			SourceID:          id,
			EffectiveBaseline: effective,
			Observed:          count,
			Expected:          expected,
			Ratio:             ratio,
			Anomalous:         ratio >= d.cfg.RatioThreshold && count >= d.cfg.MinObserved,
		}
	}

	return profiles
}

// Attach returns a copy of the batch with each item carrying its source's
// activity profile. Items whose source was excluded from grouping are left
// undecorated. The input slice is not modified; decoration is an explicit
// transform so concurrent batches never alias each other's items.
func Attach(items []model.Item, profiles map[string]model.SourceActivityProfile) []model.Item {
	decorated := make([]model.Item, len(items))
	copy(decorated, items)
	for i := range decorated {
		src := decorated[i].Source
		if src == nil {
			continue
		}
		if profile, ok := profiles[src.ID]; ok {
			p := profile
			decorated[i].Anomaly = &p
		}
	}
	return decorated
}
