package fingerprint

// Pair links a probe minutia to the candidate minutia it was aligned with.
type Pair struct {
	Probe     int     `json:"probe"`
	Candidate int     `json:"candidate"`
	Distance  float64 `json:"distance"`
}

// Alignment is the winning rigid transform found by Align. Candidate
// coordinates are approximated by rotating probe coordinates about the
// origin by Rotation radians and then translating by (TX, TY).
type Alignment struct {
	Rotation float64 `json:"rotation"`
	TX       float64 `json:"tx"`
	TY       float64 `json:"ty"`
	Pairs    []Pair  `json:"pairs"`

	// Residual is the mean squared positional error over Pairs.
	Residual float64 `json:"residual"`
}

// Count is the number of consistent correspondences.
func (a Alignment) Count() int {
	return len(a.Pairs)
}

// Align searches rotation hypotheses within ±p.MaxRotation and, for each,
// the translations implied by same-type anchor pairs. The hypothesis with the
// most one-to-one correspondences wins; ties go to the lower residual.
//
// Align is pure and safe for concurrent use.
func Align(probe, candidate *Template, p MatchParams) Alignment {
	if probe == nil || candidate == nil {
		return Alignment{}
	}
	return newAligner(probe.Minutiae, candidate.Minutiae, p).best()
}

// Score is the fraction of minutiae that found a consistent partner under the
// best alignment, relative to the smaller template. It is in [0, 1] and 0
// when either template has no minutiae.
func Score(probe, candidate *Template, p MatchParams) float64 {
	if probe == nil || candidate == nil {
		return 0
	}
	n := min(len(probe.Minutiae), len(candidate.Minutiae))
	if n == 0 {
		return 0
	}
	return scoreOf(Align(probe, candidate, p), n)
}

func scoreOf(a Alignment, n int) float64 {
	if n == 0 {
		return 0
	}
	return min(float64(a.Count())/float64(n), 1)
}
