// Package extract turns fingerprint images into minutiae templates.
package extract

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"golang.org/x/exp/slices"

	fingerprint "github.com/high-horse/fingerprint-server"
)

var ErrNoMinutiae = errors.New("no minutiae found in fingerprint image")

// Options tune minutiae detection.
type Options struct {
	// MaxMinutiae caps the template size; the minutiae nearest the centre
	// of the print are kept.
	MaxMinutiae int
	// BorderMargin drops minutiae this close to the image edge, where ridges
	// are cut off by the capture window.
	BorderMargin int
	// MinSpacing drops both minutiae of any pair closer than this; such
	// pairs are almost always skeleton noise.
	MinSpacing int
	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxMinutiae:  50,
		BorderMargin: 12,
		MinSpacing:   6,
	}
}

// Creator builds templates from grayscale images. It is stateless and safe
// for concurrent use.
type Creator struct {
	opts Options
}

func NewCreator(opts Options) *Creator {
	if opts.MaxMinutiae <= 0 {
		opts.MaxMinutiae = DefaultOptions().MaxMinutiae
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Creator{opts: opts}
}

// FromBytes decodes an encoded image and extracts its template.
func (c *Creator) FromBytes(data []byte) (*fingerprint.Template, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return c.Template(img)
}

// Template extracts minutiae from img: contrast stretch, Otsu binarization,
// Zhang-Suen thinning and crossing-number detection.
func (c *Creator) Template(img *image.Gray) (*fingerprint.Template, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return nil, fmt.Errorf("%w: %dx%d is too small", ErrInvalidImage, w, h)
	}

	pix, ok := normalize(img)
	if !ok {
		return nil, ErrNoMinutiae
	}
	t := otsu(pix)
	ridges := newBitmap(w, h)
	for i, v := range pix {
		ridges.pix[i] = v <= t
	}
	ridges.thin()

	ms := ridges.minutiae(c.opts.BorderMargin)
	ms = dropClusters(ms, c.opts.MinSpacing)
	if len(ms) == 0 {
		return nil, ErrNoMinutiae
	}
	ms = keepCentral(ms, c.opts.MaxMinutiae)
	slices.SortFunc(ms, func(a, b fingerprint.Minutia) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})

	return &fingerprint.Template{
		Version:   fingerprint.TemplateVersion,
		Shape:     fingerprint.ImageShape{Width: w, Height: h},
		Minutiae:  ms,
		Quality:   assess(pix, w, h, len(ms)),
		CreatedAt: c.opts.Now().UTC(),
	}, nil
}

// normalize copies img into a contiguous buffer stretched to 0..255.
// It reports false for a flat image.
func normalize(img *image.Gray) ([]uint8, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, 0, w*h)
	lo, hi := uint8(255), uint8(0)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, v := range row {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		pix = append(pix, row...)
	}
	if hi <= lo {
		return nil, false
	}
	scale := 255 / float64(hi-lo)
	for i, v := range pix {
		pix[i] = uint8(math.Round(float64(v-lo) * scale))
	}
	return pix, true
}

// otsu returns the threshold maximizing between-class variance.
func otsu(pix []uint8) uint8 {
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}
	total := float64(len(pix))
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB, wB, best float64
		threshold      uint8
	)
	for i, n := range hist {
		wB += float64(n)
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * n)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		if between := wB * wF * (mB - mF) * (mB - mF); between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

func dropClusters(ms []fingerprint.Minutia, spacing int) []fingerprint.Minutia {
	if spacing <= 0 {
		return ms
	}
	drop := make([]bool, len(ms))
	limit := spacing * spacing
	for i := range ms {
		for j := i + 1; j < len(ms); j++ {
			dx, dy := ms[i].X-ms[j].X, ms[i].Y-ms[j].Y
			if dx*dx+dy*dy < limit {
				drop[i], drop[j] = true, true
			}
		}
	}
	kept := ms[:0]
	for i, m := range ms {
		if !drop[i] {
			kept = append(kept, m)
		}
	}
	return kept
}

func keepCentral(ms []fingerprint.Minutia, n int) []fingerprint.Minutia {
	if len(ms) <= n {
		return ms
	}
	var cx, cy float64
	for _, m := range ms {
		cx += float64(m.X)
		cy += float64(m.Y)
	}
	cx /= float64(len(ms))
	cy /= float64(len(ms))
	dist := func(m fingerprint.Minutia) float64 {
		dx, dy := float64(m.X)-cx, float64(m.Y)-cy
		return dx*dx + dy*dy
	}
	slices.SortStableFunc(ms, func(a, b fingerprint.Minutia) int {
		da, db := dist(a), dist(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return ms[:n]
}

// Weights of the quality factors: minutiae count, contrast, sharpness and
// edge density.
const (
	weightMinutiae  = 0.3
	weightContrast  = 0.25
	weightSharpness = 0.25
	weightEdges     = 0.2

	fullMinutiae  = 30.0
	fullSharpness = 1000.0
	edgeMagnitude = 150.0
)

// assess scores the capture in [0, 1].
func assess(pix []uint8, w, h, minutiae int) float64 {
	var mean float64
	for _, v := range pix {
		mean += float64(v)
	}
	mean /= float64(len(pix))
	var variance float64
	for _, v := range pix {
		d := float64(v) - mean
		variance += d * d
	}
	contrast := math.Sqrt(variance/float64(len(pix))) / 255

	at := func(x, y int) float64 { return float64(pix[y*w+x]) }
	var lapSum, lapSq float64
	var edges, interior int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			lapSum += lap
			lapSq += lap * lap

			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if math.Hypot(gx, gy) >= edgeMagnitude {
				edges++
			}
			interior++
		}
	}
	var sharpness, edgeDensity float64
	if interior > 0 {
		n := float64(interior)
		lapMean := lapSum / n
		sharpness = math.Min((lapSq/n-lapMean*lapMean)/fullSharpness, 1)
		edgeDensity = float64(edges) / n
	}

	q := weightMinutiae*math.Min(float64(minutiae)/fullMinutiae, 1) +
		weightContrast*contrast +
		weightSharpness*sharpness +
		weightEdges*edgeDensity
	return math.Min(math.Max(q, 0), 1)
}
