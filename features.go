package fingerprint

import "math"

// Features summarizes a template for enrollment review and diagnostics.
type Features struct {
	Version         string  `json:"version"`
	MinutiaeCount   int     `json:"minutiae_count"`
	RidgeEndings    int     `json:"ridge_endings"`
	Bifurcations    int     `json:"bifurcations"`
	Quality         float64 `json:"quality"`
	ImageWidth      int     `json:"image_width"`
	ImageHeight     int     `json:"image_height"`
	MinutiaeDensity float64 `json:"minutiae_density"` // per 10,000 px²
	MeanOrientation float64 `json:"average_orientation"`
}

// Summarize computes descriptive statistics of t. MeanOrientation is the
// circular mean in [0, 2π), or 0 for a template without minutiae.
func Summarize(t *Template) Features {
	f := Features{
		Version:       t.Version,
		MinutiaeCount: len(t.Minutiae),
		Quality:       t.Quality,
		ImageWidth:    t.Shape.Width,
		ImageHeight:   t.Shape.Height,
	}
	if area := float64(t.Shape.Width) * float64(t.Shape.Height); area > 0 {
		f.MinutiaeDensity = float64(len(t.Minutiae)) / area * 10000
	}

	var sin, cos float64
	for _, m := range t.Minutiae {
		switch m.Type {
		case RidgeEnding:
			f.RidgeEndings++
		case Bifurcation:
			f.Bifurcations++
		}
		s, c := math.Sincos(m.Orientation)
		sin += s
		cos += c
	}
	if len(t.Minutiae) > 0 && (sin != 0 || cos != 0) {
		f.MeanOrientation = NormalizeAngle(math.Atan2(sin, cos))
	}
	return f
}
