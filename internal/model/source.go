package model

// SourceTier is the credibility class of a source. Ground and osint are
// first-mover tiers; reporter and official are confirmation tiers.
type SourceTier string

const (
	TierGround   SourceTier = "ground"   // eyewitness accounts, local posters
	TierOSINT    SourceTier = "osint"    // open-source trackers, monitors
	TierReporter SourceTier = "reporter" // journalists, wire stringers
	TierOfficial SourceTier = "official" // governments, militaries, agencies
)

// Precedence returns the fixed display-order rank of a tier. Lower ranks
// first: first-mover tiers always sort above confirmation tiers.
// Unknown tiers sink to the bottom.
func (t SourceTier) Precedence() int {
	switch t {
	case TierGround:
		return 0
	case TierOSINT:
		return 1
	case TierReporter:
		return 2
	case TierOfficial:
		return 3
	default:
		return 4
	}
}

// FirstMover reports whether the tier breaks stories rather than
// confirming them.
func (t SourceTier) FirstMover() bool {
	return t == TierGround || t == TierOSINT
}

// Confirming reports whether the tier counts as confirmation.
func (t SourceTier) Confirming() bool {
	return t == TierReporter || t == TierOfficial
}

// Baseline is a source's posts-per-day rate, tagged with how it was
// obtained. Rates measured from actual posting history are trustworthy;
// rates entered by hand in the source catalog are overwhelmingly round
// numbers and systematically inflated, so callers treat unmeasured
// values as guesses.
type Baseline struct {
	PostsPerDay float64 `json:"posts_per_day"`
	Measured    bool    `json:"measured"`
}

// SourceRef identifies the source that produced an item.
type SourceRef struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Tier     SourceTier `json:"tier"`
	Baseline Baseline   `json:"baseline"`
}
