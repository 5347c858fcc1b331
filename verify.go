package fingerprint

// Verification is the result of a 1:1 comparison against a claimed identity.
type Verification struct {
	Matched   bool    `json:"matched"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Reason    string  `json:"reason,omitempty"`
}

// Verify compares probe with a single candidate under p. A probe that fails
// the quality gate is never verified and carries the gate's reason.
func Verify(probe, candidate *Template, p Policy) (Verification, error) {
	if probe == nil || candidate == nil {
		return Verification{}, ErrNilTemplate
	}
	v := Verification{Threshold: p.DecisionThreshold}
	if verdict := AssessQuality(probe, p.Quality); !verdict.Accepted {
		v.Reason = verdict.Reason
		return v, nil
	}
	v.Score = Score(probe, candidate, p.Match)
	v.Matched = v.Score >= p.DecisionThreshold
	if !v.Matched {
		v.Reason = ReasonBelowThreshold
	}
	return v, nil
}
