package fingerprint

// Reasons reported by the quality gate.
const (
	ReasonInsufficientMinutiae = "insufficient-minutiae"
	ReasonQualityBelow         = "quality-below-threshold"
)

// QualityVerdict is the outcome of AssessQuality.
type QualityVerdict struct {
	Accepted      bool    `json:"accepted"`
	Score         float64 `json:"score"`
	MinutiaeCount int     `json:"minutiae_count"`
	Reason        string  `json:"reason,omitempty"`
}

// AssessQuality decides whether t is usable for enrollment or matching.
// The minutiae count is checked before the recorded quality score. A score
// that is not a number never passes.
func AssessQuality(t *Template, p QualityPolicy) QualityVerdict {
	v := QualityVerdict{
		Score:         t.Quality,
		MinutiaeCount: len(t.Minutiae),
	}
	switch {
	case len(t.Minutiae) < p.MinMinutiae:
		v.Reason = ReasonInsufficientMinutiae
	case !(t.Quality >= p.Threshold):
		v.Reason = ReasonQualityBelow
	default:
		v.Accepted = true
	}
	return v
}
