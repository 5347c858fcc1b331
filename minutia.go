package fingerprint

import (
	"fmt"
	"math"
	"strings"
)

// MinutiaType distinguishes the two ridge features a template records.
type MinutiaType uint8

const (
	RidgeEnding MinutiaType = iota
	Bifurcation
)

func (t MinutiaType) String() string {
	switch t {
	case RidgeEnding:
		return "ridge_ending"
	case Bifurcation:
		return "bifurcation"
	default:
		return fmt.Sprintf("MinutiaType(%d)", uint8(t))
	}
}

// ParseMinutiaType accepts the spellings produced by known extractors.
func ParseMinutiaType(s string) (MinutiaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ridge_ending", "ridge-ending", "ending", "end":
		return RidgeEnding, nil
	case "bifurcation", "bif":
		return Bifurcation, nil
	}
	return 0, fmt.Errorf("unknown minutia type %q", s)
}

// Minutia is a single ridge feature. Orientation is in radians, [0, 2π).
type Minutia struct {
	X           int
	Y           int
	Orientation float64
	Type        MinutiaType
}

// NormalizeAngle wraps a into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// AngleDistance returns the smallest absolute difference between two angles,
// in [0, π].
func AngleDistance(a, b float64) float64 {
	d := math.Abs(math.Mod(a-b, 2*math.Pi))
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
