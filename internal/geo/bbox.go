// Package geo holds the bounding-box type shared by the extent calculators
// and the layer pipeline.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// BBox is an extent as [minX, minY, maxX, maxY] in the target projection.
type BBox [4]float64

// FromSlice converts a layer's raw extent. Only a 4-element, finite,
// well-ordered slice yields ok.
func FromSlice(v []float64) (BBox, bool) {
	if len(v) != 4 {
		return BBox{}, false
	}
	b := BBox{v[0], v[1], v[2], v[3]}
	return b, b.Valid()
}

// Valid reports whether all values are finite and min <= max on both axes.
func (b BBox) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b[0] <= b[2] && b[1] <= b[3]
}

// Slice returns the box as a fresh slice, the shape layers carry.
func (b BBox) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// Bound converts to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// Union returns the smallest box containing both.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		math.Min(b[0], o[0]),
		math.Min(b[1], o[1]),
		math.Max(b[2], o[2]),
		math.Max(b[3], o[3]),
	}
}

// Accumulator tracks a running min/max per axis. The zero value is not
// usable; call NewAccumulator.
type Accumulator struct {
	minX, minY, maxX, maxY float64
	n                      int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		minX: math.Inf(1),
		minY: math.Inf(1),
		maxX: math.Inf(-1),
		maxY: math.Inf(-1),
	}
}

// Add extends the running extent. Non-finite points are rejected and
// reported as false.
func (a *Accumulator) Add(p orb.Point) bool {
	x, y := p[0], p[1]
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false
	}
	a.minX = math.Min(a.minX, x)
	a.minY = math.Min(a.minY, y)
	a.maxX = math.Max(a.maxX, x)
	a.maxY = math.Max(a.maxY, y)
	a.n++
	return true
}

// Count is the number of accepted points.
func (a *Accumulator) Count() int {
	return a.n
}

// Extent returns the box, or false when no point was accepted.
func (a *Accumulator) Extent() (BBox, bool) {
	if a.n == 0 {
		return BBox{}, false
	}
	return BBox{a.minX, a.minY, a.maxX, a.maxY}, true
}
