package cascade

import "time"

// Config holds the lexicon and thresholds the classifier runs with.
// Everything here is tunable without touching the classification
// algorithm; internal/config can overlay these from a config file.
type Config struct {
	// SignificanceTerms gate items into the cascade at all: an item with
	// none of these in its title or body never gets a badge. Matching is
	// case-insensitive substring.
	SignificanceTerms []string

	// StopWords are discarded before title-overlap comparison.
	StopWords []string

	// SimilarityThreshold is the minimum token overlap (shared tokens
	// divided by the larger token-set size) for two titles to count as
	// the same story.
	SimilarityThreshold float64

	// FreshWindow is how long a first-mover item can collect corroborating
	// first-mover reports before it must find a confirmation-tier match
	// or age out.
	FreshWindow time.Duration

	// MinCorroborating is the number of similar first-mover reports
	// (including the item itself) that upgrades a fresh item from first
	// to developing.
	MinCorroborating int
}

// DefaultConfig returns the standard lexicon and thresholds.
func DefaultConfig() Config {
	return Config{
		SignificanceTerms: []string{
			// Breaking/urgent markers
			"breaking", "urgent", "just in", "developing",
			// Military / conflict
			"missile", "airstrike", "strike", "explosion", "shelling",
			"drone", "attack", "invasion", "offensive", "artillery",
			"gunfire", "troops",
			// Diplomatic crisis
			"sanctions", "ceasefire", "ultimatum", "embassy", "coup",
			"martial law", "mobilization",
			// Critical infrastructure
			"power plant", "pipeline", "power grid", "nuclear",
			"blackout", "airport closed",
			// Civil unrest
			"protest", "riot", "uprising", "curfew", "evacuation",
		},
		StopWords: []string{
			"the", "and", "for", "with", "from", "that", "this",
			"after", "over", "near", "into", "amid", "are", "was",
			"were", "has", "have", "had", "will", "been", "its",
			"his", "her", "their", "about", "says", "said",
			"report", "reports", "reported", "reportedly",
			"news", "live", "update", "updates", "new", "more",
		},
		SimilarityThreshold: 0.30,
		FreshWindow:         30 * time.Minute,
		MinCorroborating:    2,
	}
}
