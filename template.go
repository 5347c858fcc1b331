package fingerprint

import (
	"math"
	"strings"
	"time"
)

// TemplateVersion is stamped on newly extracted templates. Encode writes the
// template's own version, which may be any 1.x tag.
const TemplateVersion = "1.0"

// ImageShape is the size of the capture a template was extracted from.
type ImageShape struct {
	Width  int
	Height int
}

// Contains reports whether (x, y) is a pixel of the image.
func (s ImageShape) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// Template is an enrolled or probe fingerprint record.
//
// Templates are treated as immutable once built: the engine only reads them
// and callers must not modify Minutiae after handing a template over.
type Template struct {
	Version   string
	Shape     ImageShape
	Minutiae  []Minutia
	Quality   float64
	CreatedAt time.Time
}

// MinutiaeCount is the number of minutiae in the template.
func (t *Template) MinutiaeCount() int {
	return len(t.Minutiae)
}

// Validate checks the structural invariants shared by every template.
// Failures are reported as a *DecodeError of kind ErrInvariantViolated.
func (t *Template) Validate() error {
	if t == nil {
		return ErrNilTemplate
	}
	if !supportedVersion(t.Version) {
		return violated("unsupported version %q", t.Version)
	}
	if t.Shape.Width <= 0 || t.Shape.Height <= 0 {
		return violated("image shape %dx%d must be positive", t.Shape.Width, t.Shape.Height)
	}
	if math.IsNaN(t.Quality) || t.Quality < 0 || t.Quality > 1 {
		return violated("quality %v outside [0,1]", t.Quality)
	}
	for i, m := range t.Minutiae {
		if !t.Shape.Contains(m.X, m.Y) {
			return violated("minutia %d at (%d,%d) outside %dx%d image", i, m.X, m.Y, t.Shape.Width, t.Shape.Height)
		}
		if math.IsNaN(m.Orientation) || math.IsInf(m.Orientation, 0) {
			return violated("minutia %d has non-finite orientation", i)
		}
		if m.Orientation < 0 || m.Orientation >= 2*math.Pi {
			return violated("minutia %d orientation %v outside [0,2π)", i, m.Orientation)
		}
		if m.Type != RidgeEnding && m.Type != Bifurcation {
			return violated("minutia %d has unknown type %d", i, m.Type)
		}
	}
	return nil
}

// supportedVersion accepts any 1.x tag.
func supportedVersion(v string) bool {
	return v == "1" || strings.HasPrefix(v, "1.")
}
