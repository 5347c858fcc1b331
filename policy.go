package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"runtime"
)

// Defaults for the engine policy. They are starting points for a minutiae
// matcher and should be tuned against a labelled dataset.
const (
	DefaultMinMinutiae          = 12
	DefaultQualityThreshold     = 0.5
	DefaultMaxRotation          = 30 * math.Pi / 180
	DefaultRotationStep         = 2 * math.Pi / 180
	DefaultDistanceTolerance    = 10.0
	DefaultOrientationTolerance = math.Pi / 6
	DefaultDecisionThreshold    = 0.45
	DefaultAmbiguityMargin      = 0.05
	DefaultReportCandidates     = 3
)

// QualityPolicy is the usability gate applied to enrollments and probes.
type QualityPolicy struct {
	MinMinutiae int
	Threshold   float64
}

// MatchParams bounds the alignment search of the pairwise matcher.
// Angles are in radians.
type MatchParams struct {
	MaxRotation          float64
	RotationStep         float64
	DistanceTolerance    float64
	OrientationTolerance float64
}

// Policy is everything Identify needs besides its inputs.
type Policy struct {
	Quality           QualityPolicy
	Match             MatchParams
	DecisionThreshold float64
	AmbiguityMargin   float64

	// Workers caps concurrent pairwise scoring; values below 1 mean GOMAXPROCS.
	Workers int

	// ReportCandidates is how many ranked scores a MatchResult carries.
	ReportCandidates int
}

func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		MinMinutiae: DefaultMinMinutiae,
		Threshold:   DefaultQualityThreshold,
	}
}

func DefaultMatchParams() MatchParams {
	return MatchParams{
		MaxRotation:          DefaultMaxRotation,
		RotationStep:         DefaultRotationStep,
		DistanceTolerance:    DefaultDistanceTolerance,
		OrientationTolerance: DefaultOrientationTolerance,
	}
}

func DefaultPolicy() Policy {
	return Policy{
		Quality:           DefaultQualityPolicy(),
		Match:             DefaultMatchParams(),
		DecisionThreshold: DefaultDecisionThreshold,
		AmbiguityMargin:   DefaultAmbiguityMargin,
		Workers:           runtime.GOMAXPROCS(0),
		ReportCandidates:  DefaultReportCandidates,
	}
}

// Validate reports every out-of-range setting.
func (p Policy) Validate() error {
	var errs []error
	if p.Quality.MinMinutiae < 0 {
		errs = append(errs, fmt.Errorf("min minutiae %d must not be negative", p.Quality.MinMinutiae))
	}
	if !inUnit(p.Quality.Threshold) {
		errs = append(errs, fmt.Errorf("quality threshold %v outside [0,1]", p.Quality.Threshold))
	}
	if !inUnit(p.DecisionThreshold) {
		errs = append(errs, fmt.Errorf("decision threshold %v outside [0,1]", p.DecisionThreshold))
	}
	if !inUnit(p.AmbiguityMargin) {
		errs = append(errs, fmt.Errorf("ambiguity margin %v outside [0,1]", p.AmbiguityMargin))
	}
	if err := p.Match.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m MatchParams) Validate() error {
	switch {
	case m.MaxRotation < 0 || m.MaxRotation > math.Pi:
		return fmt.Errorf("max rotation %v outside [0,π]", m.MaxRotation)
	case m.RotationStep <= 0:
		return fmt.Errorf("rotation step %v must be positive", m.RotationStep)
	case m.DistanceTolerance <= 0:
		return fmt.Errorf("distance tolerance %v must be positive", m.DistanceTolerance)
	case m.OrientationTolerance <= 0 || m.OrientationTolerance > math.Pi:
		return fmt.Errorf("orientation tolerance %v outside (0,π]", m.OrientationTolerance)
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
