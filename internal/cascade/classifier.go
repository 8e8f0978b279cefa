// Package cascade assigns each item a cross-source confirmation badge and
// produces the display ordering.
//
// Classification is a small state machine per item, re-evaluated
// statelessly on every batch: no item remembers its previous badge, and
// the badge is a pure function of the current batch and the item's age.
package cascade

import (
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/earlywire/internal/model"
)

// Classifier badges items and ranks them for display. Pure given a batch;
// safe to share across concurrent batches.
type Classifier struct {
	cfg   Config
	terms []string
	stop  map[string]struct{}
	now   func() time.Time
}

// NewClassifier creates a classifier with the given lexicon and thresholds.
func NewClassifier(cfg Config) *Classifier {
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	terms := make([]string, len(cfg.SignificanceTerms))
	for i, t := range cfg.SignificanceTerms {
		terms[i] = strings.ToLower(t)
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = DefaultConfig().FreshWindow
	}
	if cfg.MinCorroborating <= 0 {
		cfg.MinCorroborating = DefaultConfig().MinCorroborating
	}
	return &Classifier{cfg: cfg, terms: terms, stop: stop, now: time.Now}
}

// Significant reports whether the item's text contains at least one term
// from the significance lexicon. Routine posts never pass this gate and
// therefore never get a badge.
func (c *Classifier) Significant(it model.Item) bool {
	text := strings.ToLower(it.Text())
	for _, term := range c.terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Similar reports whether two titles refer to the same story, by token
// overlap against the configured threshold.
func (c *Classifier) Similar(a, b string) bool {
	return overlap(tokenize(a, c.stop), tokenize(b, c.stop)) >= c.cfg.SimilarityThreshold
}

// Classify returns the badge for one item given the full batch it arrived
// in. The batch is the only cross-referencing context; out-of-batch
// history plays no part.
func (c *Classifier) Classify(it model.Item, batch []model.Item) model.AlertStatus {
	if it.Source == nil {
		return model.StatusNone
	}

	tier := it.Source.Tier
	switch {
	case tier.Confirming():
		// Confirmation-tier items are definitionally confirmations when
		// significant; no look-back needed.
		if c.Significant(it) {
			return model.StatusConfirmed
		}
		return model.StatusNone

	case tier.FirstMover():
		if !c.Significant(it) {
			return model.StatusNone
		}
		if it.Age(c.now()) < c.cfg.FreshWindow {
			if c.countCorroborating(it, batch) >= c.cfg.MinCorroborating {
				return model.StatusDeveloping
			}
			return model.StatusFirst
		}
		// Past the fresh window the early signal either picked up a later
		// confirmation-tier match or it aged out.
		if c.hasLaterConfirmation(it, batch) {
			return model.StatusConfirmed
		}
		return model.StatusNone

	default:
		return model.StatusNone
	}
}

// countCorroborating counts first-mover items in the batch telling the
// same story, the item itself included: two similar fresh reports means
// both are developing.
func (c *Classifier) countCorroborating(it model.Item, batch []model.Item) int {
	tokens := tokenize(it.Title, c.stop)
	count := 0
	for _, other := range batch {
		if other.Source == nil || !other.Source.Tier.FirstMover() {
			continue
		}
		if overlap(tokens, tokenize(other.Title, c.stop)) >= c.cfg.SimilarityThreshold {
			count++
		}
	}
	return count
}

// hasLaterConfirmation reports whether any confirmation-tier item with a
// similar title carries a strictly later timestamp.
func (c *Classifier) hasLaterConfirmation(it model.Item, batch []model.Item) bool {
	tokens := tokenize(it.Title, c.stop)
	for _, other := range batch {
		if other.ID == it.ID || other.Source == nil || !other.Source.Tier.Confirming() {
			continue
		}
		if !other.Published.After(it.Published) {
			continue
		}
		if overlap(tokens, tokenize(other.Title, c.stop)) >= c.cfg.SimilarityThreshold {
			return true
		}
	}
	return false
}

// originatingSource finds the earliest first-mover item telling the same
// story before the given confirmation, returning its source name.
func (c *Classifier) originatingSource(it model.Item, batch []model.Item) string {
	tokens := tokenize(it.Title, c.stop)
	var earliest *model.Item
	for i := range batch {
		other := &batch[i]
		if other.ID == it.ID || other.Source == nil || !other.Source.Tier.FirstMover() {
			continue
		}
		if !other.Published.Before(it.Published) {
			continue
		}
		if overlap(tokens, tokenize(other.Title, c.stop)) < c.cfg.SimilarityThreshold {
			continue
		}
		if earliest == nil || other.Published.Before(earliest.Published) {
			earliest = other
		}
	}
	if earliest == nil {
		return ""
	}
	return earliest.Source.Name
}

// ClassifyAll returns a decorated copy of the batch: every item carries
// its badge, and confirmed confirmation-tier items name the first-mover
// source they corroborate. The input slice is not modified.
func (c *Classifier) ClassifyAll(items []model.Item) []model.Item {
	decorated := make([]model.Item, len(items))
	copy(decorated, items)

	for i := range decorated {
		decorated[i].Status = c.Classify(decorated[i], items)
	}
	for i := range decorated {
		it := &decorated[i]
		if it.Status != model.StatusConfirmed || it.Source == nil || !it.Source.Tier.Confirming() {
			continue
		}
		it.ConfirmedBy = c.originatingSource(*it, items)
	}
	return decorated
}

// statusRank orders badges within a tier: first < developing < confirmed,
// with unbadged items last.
func statusRank(s model.AlertStatus) int {
	switch s {
	case model.StatusFirst:
		return 0
	case model.StatusDeveloping:
		return 1
	case model.StatusConfirmed:
		return 2
	default:
		return 3
	}
}

// RankForDisplay returns the batch in cascade priority order: tier
// precedence first (first-mover tiers always above confirmation tiers,
// regardless of badge or recency), badge precedence within a tier, then
// newest first. The sort is stable and the input is not modified.
func (c *Classifier) RankForDisplay(items []model.Item) []model.Item {
	ranked := make([]model.Item, len(items))
	copy(ranked, items)

	sort.SliceStable(ranked, func(i, j int) bool {
		var ti, tj model.SourceTier
		if ranked[i].Source != nil {
			ti = ranked[i].Source.Tier
		}
		if ranked[j].Source != nil {
			tj = ranked[j].Source.Tier
		}
		if ti.Precedence() != tj.Precedence() {
			return ti.Precedence() < tj.Precedence()
		}
		if statusRank(ranked[i].Status) != statusRank(ranked[j].Status) {
			return statusRank(ranked[i].Status) < statusRank(ranked[j].Status)
		}
		return ranked[i].Published.After(ranked[j].Published)
	})
	return ranked
}
