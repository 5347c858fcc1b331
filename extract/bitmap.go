package extract

import (
	"math"

	fingerprint "github.com/high-horse/fingerprint-server"
)

// traceSteps is how far along a ridge orientation is measured.
const traceSteps = 10

// neighbours in clockwise order starting north: P2..P9 of Zhang-Suen.
var neighbours = [8][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1},
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// bitmap is a binary image; true marks ridge pixels.
type bitmap struct {
	w, h int
	pix  []bool
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, pix: make([]bool, w*h)}
}

func (b *bitmap) at(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.w && y < b.h && b.pix[y*b.w+x]
}

func (b *bitmap) ring(x, y int) (p [8]bool) {
	for i, d := range neighbours {
		p[i] = b.at(x+d[0], y+d[1])
	}
	return p
}

// thin reduces ridges to one pixel wide skeletons (Zhang-Suen).
func (b *bitmap) thin() {
	var del []int
	for changed := true; changed; {
		changed = false
		for step := 0; step < 2; step++ {
			del = del[:0]
			for y := 1; y < b.h-1; y++ {
				for x := 1; x < b.w-1; x++ {
					if !b.pix[y*b.w+x] {
						continue
					}
					p := b.ring(x, y)
					n := count(p)
					if n < 2 || n > 6 || transitions(p) != 1 {
						continue
					}
					// p[0]=N p[2]=E p[4]=S p[6]=W
					if step == 0 && (p[0] && p[2] && p[4] || p[2] && p[4] && p[6]) {
						continue
					}
					if step == 1 && (p[0] && p[2] && p[6] || p[0] && p[4] && p[6]) {
						continue
					}
					del = append(del, y*b.w+x)
				}
			}
			for _, i := range del {
				b.pix[i] = false
			}
			changed = changed || len(del) > 0
		}
	}
}

func count(p [8]bool) int {
	n := 0
	for _, v := range p {
		if v {
			n++
		}
	}
	return n
}

// transitions counts off-to-on changes around the ring. On a skeleton this is
// the crossing number.
func transitions(p [8]bool) int {
	n := 0
	for i := range p {
		if !p[i] && p[(i+1)%8] {
			n++
		}
	}
	return n
}

// minutiae finds ridge endings (crossing number 1) and bifurcations
// (crossing number 3) at least margin pixels inside the image.
func (b *bitmap) minutiae(margin int) []fingerprint.Minutia {
	var ms []fingerprint.Minutia
	for y := max(margin, 1); y < b.h-max(margin, 1); y++ {
		for x := max(margin, 1); x < b.w-max(margin, 1); x++ {
			if !b.pix[y*b.w+x] {
				continue
			}
			p := b.ring(x, y)
			var typ fingerprint.MinutiaType
			switch transitions(p) {
			case 1:
				typ = fingerprint.RidgeEnding
			case 3:
				typ = fingerprint.Bifurcation
			default:
				continue
			}
			ms = append(ms, fingerprint.Minutia{
				X:           x,
				Y:           y,
				Orientation: b.orientation(x, y, p),
				Type:        typ,
			})
		}
	}
	return ms
}

// orientation points from the ridge body towards the minutia: the mean of
// the directions from each branch's traced end back to (x, y).
func (b *bitmap) orientation(x, y int, p [8]bool) float64 {
	var sx, sy float64
	for i := range p {
		// one branch starts at each off-to-on change
		if p[i] || !p[(i+1)%8] {
			continue
		}
		d := neighbours[(i+1)%8]
		ex, ey := b.trace(x, y, x+d[0], y+d[1])
		dx, dy := float64(x-ex), float64(y-ey)
		if l := math.Hypot(dx, dy); l > 0 {
			sx += dx / l
			sy += dy / l
		}
	}
	if sx == 0 && sy == 0 {
		return 0
	}
	return fingerprint.NormalizeAngle(math.Atan2(sy, sx))
}

// trace follows the skeleton from (sx, sy), away from the origin, for up to
// traceSteps pixels and returns where it stopped.
func (b *bitmap) trace(ox, oy, sx, sy int) (int, int) {
	visited := map[[2]int]bool{{ox, oy}: true, {sx, sy}: true}
	x, y := sx, sy
	for i := 1; i < traceSteps; i++ {
		moved := false
		for _, d := range neighbours {
			nx, ny := x+d[0], y+d[1]
			if b.at(nx, ny) && !visited[[2]int{nx, ny}] {
				visited[[2]int{nx, ny}] = true
				x, y = nx, ny
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	return x, y
}
