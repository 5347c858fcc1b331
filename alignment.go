package fingerprint

import (
	"math"

	"github.com/emirpasic/gods/queues/priorityqueue"
)

// grid buckets candidate minutiae into square cells one tolerance wide, so a
// neighbourhood query only has to look at the 3x3 cells around a point.
// Only occupied cells are stored, so memory follows the minutiae count and
// not the coordinate spread.
type grid struct {
	cell  float64
	cells map[[2]int][]int
}

func newGrid(ms []Minutia, cell float64) *grid {
	g := &grid{cell: cell, cells: make(map[[2]int][]int, len(ms))}
	for j, m := range ms {
		k := g.cellOf(float64(m.X), float64(m.Y))
		g.cells[k] = append(g.cells[k], j)
	}
	return g
}

func (g *grid) cellOf(x, y float64) [2]int {
	return [2]int{int(math.Floor(x / g.cell)), int(math.Floor(y / g.cell))}
}

// near calls fn for every indexed minutia that may lie within one cell of (x, y).
func (g *grid) near(x, y float64, fn func(j int)) {
	if len(g.cells) == 0 {
		return
	}
	c := g.cellOf(x, y)
	for gy := c[1] - 1; gy <= c[1]+1; gy++ {
		for gx := c[0] - 1; gx <= c[0]+1; gx++ {
			for _, j := range g.cells[[2]int{gx, gy}] {
				fn(j)
			}
		}
	}
}

// rotations lists the hypotheses in search order: 0, -step, +step, -2step, ...
// Earlier hypotheses win exact ties, so small rotations are preferred.
func rotations(p MatchParams) []float64 {
	k := int(math.Floor(p.MaxRotation/p.RotationStep + 1e-9))
	out := make([]float64, 0, 2*k+1)
	out = append(out, 0)
	for i := 1; i <= k; i++ {
		a := float64(i) * p.RotationStep
		out = append(out, -a, a)
	}
	return out
}

type pairCandidate struct {
	probe, candidate int
	dist2            float64
}

// nearestFirst orders pair candidates by squared distance, then by index so
// that the greedy assignment is deterministic.
func nearestFirst(a, b interface{}) int {
	pa, pb := a.(pairCandidate), b.(pairCandidate)
	switch {
	case pa.dist2 < pb.dist2:
		return -1
	case pa.dist2 > pb.dist2:
		return 1
	case pa.probe != pb.probe:
		return pa.probe - pb.probe
	default:
		return pa.candidate - pb.candidate
	}
}

// aligner holds the per-call scratch space of one probe/candidate comparison.
// It is never shared between goroutines.
type aligner struct {
	probe, cand []Minutia
	params      MatchParams
	tol2        float64
	g           *grid

	rx, ry, ro   []float64
	usedP, usedC []bool
	scratch      []Pair
	queue        *priorityqueue.Queue
}

func newAligner(probe, cand []Minutia, p MatchParams) *aligner {
	return &aligner{
		probe:   probe,
		cand:    cand,
		params:  p,
		tol2:    p.DistanceTolerance * p.DistanceTolerance,
		g:       newGrid(cand, p.DistanceTolerance),
		rx:      make([]float64, len(probe)),
		ry:      make([]float64, len(probe)),
		ro:      make([]float64, len(probe)),
		usedP:   make([]bool, len(probe)),
		usedC:   make([]bool, len(cand)),
		scratch: make([]Pair, 0, min(len(probe), len(cand))),
		queue:   priorityqueue.NewWith(nearestFirst),
	}
}

func (a *aligner) rotate(theta float64) {
	sin, cos := math.Sincos(theta)
	for i, m := range a.probe {
		x, y := float64(m.X), float64(m.Y)
		a.rx[i] = x*cos - y*sin
		a.ry[i] = x*sin + y*cos
		a.ro[i] = m.Orientation + theta
	}
}

// best runs the full hypothesis search.
func (a *aligner) best() Alignment {
	best := Alignment{Residual: math.Inf(1)}
	limit := min(len(a.probe), len(a.cand))
	if limit == 0 {
		return Alignment{}
	}

	for _, theta := range rotations(a.params) {
		a.rotate(theta)
		seen := make(map[[2]float64]struct{})
		for i, pm := range a.probe {
			for _, cm := range a.cand {
				if pm.Type != cm.Type {
					continue
				}
				if AngleDistance(a.ro[i], cm.Orientation) > a.params.OrientationTolerance {
					continue
				}
				t := [2]float64{float64(cm.X) - a.rx[i], float64(cm.Y) - a.ry[i]}
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}

				count, sum := a.consistent(t[0], t[1])
				if count == 0 {
					continue
				}
				residual := sum / float64(count)
				if count > len(best.Pairs) || (count == len(best.Pairs) && residual < best.Residual) {
					best = Alignment{
						Rotation: theta,
						TX:       t[0],
						TY:       t[1],
						Residual: residual,
						Pairs:    append([]Pair(nil), a.scratch...),
					}
					if count == limit && residual == 0 {
						return best
					}
				}
			}
		}
	}
	if len(best.Pairs) == 0 {
		return Alignment{}
	}
	return best
}

// consistent greedily pairs rotated probe minutiae, shifted by (tx, ty), with
// candidate minutiae, nearest first and one-to-one. It leaves the pairs in
// a.scratch and returns their count and summed squared distance.
func (a *aligner) consistent(tx, ty float64) (int, float64) {
	a.queue.Clear()
	for i := range a.probe {
		px, py, po := a.rx[i]+tx, a.ry[i]+ty, a.ro[i]
		a.g.near(px, py, func(j int) {
			c := a.cand[j]
			dx, dy := float64(c.X)-px, float64(c.Y)-py
			d2 := dx*dx + dy*dy
			if d2 > a.tol2 {
				return
			}
			if AngleDistance(po, c.Orientation) > a.params.OrientationTolerance {
				return
			}
			a.queue.Enqueue(pairCandidate{probe: i, candidate: j, dist2: d2})
		})
	}

	clear(a.usedP)
	clear(a.usedC)
	a.scratch = a.scratch[:0]
	var sum float64
	for !a.queue.Empty() {
		v, _ := a.queue.Dequeue()
		pc := v.(pairCandidate)
		if a.usedP[pc.probe] || a.usedC[pc.candidate] {
			continue
		}
		a.usedP[pc.probe] = true
		a.usedC[pc.candidate] = true
		a.scratch = append(a.scratch, Pair{Probe: pc.probe, Candidate: pc.candidate, Distance: math.Sqrt(pc.dist2)})
		sum += pc.dist2
	}
	return len(a.scratch), sum
}
