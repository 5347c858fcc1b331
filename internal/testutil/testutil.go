// Package testutil builds deterministic synthetic templates and images for tests.
package testutil

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
	"time"

	fingerprint "github.com/high-horse/fingerprint-server"
)

// DefaultShape is the capture size used by synthetic templates.
var DefaultShape = fingerprint.ImageShape{Width: 400, Height: 400}

// MinSpacing keeps synthetic minutiae far enough apart that every
// correspondence is unambiguous under the default distance tolerance.
const MinSpacing = 30

// RandomTemplate returns n minutiae spread over DefaultShape, at least
// MinSpacing apart and at least margin pixels from every border.
func RandomTemplate(seed int64, n int) *fingerprint.Template {
	const margin = 60
	rng := rand.New(rand.NewSource(seed))
	t := &fingerprint.Template{
		Version:   fingerprint.TemplateVersion,
		Shape:     DefaultShape,
		Quality:   0.8,
		CreatedAt: time.Date(2024, 9, 2, 8, 30, 0, 0, time.UTC),
		Minutiae:  make([]fingerprint.Minutia, 0, n),
	}
	for attempts := 0; len(t.Minutiae) < n && attempts < 100000; attempts++ {
		x := margin + rng.Intn(DefaultShape.Width-2*margin)
		y := margin + rng.Intn(DefaultShape.Height-2*margin)
		if tooClose(t.Minutiae, x, y) {
			continue
		}
		typ := fingerprint.RidgeEnding
		if rng.Intn(2) == 1 {
			typ = fingerprint.Bifurcation
		}
		t.Minutiae = append(t.Minutiae, fingerprint.Minutia{
			X:           x,
			Y:           y,
			Orientation: rng.Float64() * 2 * math.Pi,
			Type:        typ,
		})
	}
	return t
}

func tooClose(ms []fingerprint.Minutia, x, y int) bool {
	for _, m := range ms {
		dx, dy := m.X-x, m.Y-y
		if dx*dx+dy*dy < MinSpacing*MinSpacing {
			return true
		}
	}
	return false
}

// Clone deep-copies t.
func Clone(t *fingerprint.Template) *fingerprint.Template {
	c := *t
	c.Minutiae = append([]fingerprint.Minutia(nil), t.Minutiae...)
	return &c
}

// Shift translates every minutia of a copy of t by (dx, dy).
func Shift(t *fingerprint.Template, dx, dy int) *fingerprint.Template {
	c := Clone(t)
	for i := range c.Minutiae {
		c.Minutiae[i].X += dx
		c.Minutiae[i].Y += dy
	}
	return c
}

// Rotate turns a copy of t by theta radians about the image centre,
// rounding coordinates to whole pixels.
func Rotate(t *fingerprint.Template, theta float64) *fingerprint.Template {
	c := Clone(t)
	cx, cy := float64(t.Shape.Width)/2, float64(t.Shape.Height)/2
	sin, cos := math.Sincos(theta)
	for i, m := range c.Minutiae {
		x, y := float64(m.X)-cx, float64(m.Y)-cy
		c.Minutiae[i].X = int(math.Round(x*cos - y*sin + cx))
		c.Minutiae[i].Y = int(math.Round(x*sin + y*cos + cy))
		c.Minutiae[i].Orientation = fingerprint.NormalizeAngle(m.Orientation + theta)
	}
	return c
}

// Truncate keeps the first n minutiae of a copy of t.
func Truncate(t *fingerprint.Template, n int) *fingerprint.Template {
	c := Clone(t)
	c.Minutiae = c.Minutiae[:n]
	return c
}

// MustEncode encodes t with the default codec or fails the test.
func MustEncode(tb testing.TB, t *fingerprint.Template) string {
	tb.Helper()
	raw, err := fingerprint.Encode(t)
	if err != nil {
		tb.Fatalf("encode template: %v", err)
	}
	return string(raw)
}

// RidgeImage draws dark, three pixel thick horizontal ridges on a light
// background. Each ridge is broken by one gap, which yields a pair of ridge endings per ridge.
func RidgeImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	const period = 12
	for row, y0 := 0, 24; y0+2 < height-24; row, y0 = row+1, y0+period {
		gapStart := 40 + (row*37)%(width-100)
		for y := y0; y < y0+3; y++ {
			for x := 20; x < width-20; x++ {
				if x >= gapStart && x < gapStart+14 {
					continue
				}
				img.SetGray(x, y, color.Gray{Y: 25})
			}
		}
	}
	return img
}
