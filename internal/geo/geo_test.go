package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestFromSlice(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		ok   bool
	}{
		{"valid", []float64{0, 0, 1, 1}, true},
		{"zero area", []float64{0, 0, 0, 0}, true},
		{"short", []float64{0, 0, 1}, false},
		{"inverted", []float64{2, 0, 1, 1}, false},
		{"inf", []float64{math.Inf(-1), 0, 1, 1}, false},
		{"nan", []float64{0, math.NaN(), 1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := FromSlice(tt.in); ok != tt.ok {
				t.Fatalf("ok=%v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	a := NewAccumulator()
	if _, ok := a.Extent(); ok {
		t.Fatal("empty accumulator reported an extent")
	}
	a.Add(orb.Point{math.Inf(1), 0})
	a.Add(orb.Point{math.NaN(), 1})
	if _, ok := a.Extent(); ok {
		t.Fatal("rejected points produced an extent")
	}
}

func TestEachPointNested(t *testing.T) {
	g := orb.Collection{
		orb.Point{1, 2},
		orb.LineString{{-3, 4}, {5, -6}},
		orb.MultiPolygon{{{{10, 10}, {11, 10}, {11, 12}, {10, 10}}}},
		orb.Collection{orb.MultiPoint{{-20, 0}}},
	}

	a := NewAccumulator()
	EachPoint(g, func(p orb.Point) bool {
		a.Add(p)
		return true
	})

	got, ok := a.Extent()
	if !ok {
		t.Fatal("no extent")
	}
	want := BBox{-20, -6, 11, 12}
	if got != want {
		t.Fatalf("extent=%v, want %v", got, want)
	}
	if a.Count() != 8 {
		t.Fatalf("count=%d, want 8", a.Count())
	}
}

func TestEachPointStops(t *testing.T) {
	n := 0
	EachPoint(orb.LineString{{0, 0}, {1, 1}, {2, 2}}, func(orb.Point) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Fatalf("visited=%d, want 2", n)
	}
}

func TestUnion(t *testing.T) {
	got := BBox{0, 0, 1, 1}.Union(BBox{-1, 0.5, 0.5, 3})
	if got != (BBox{-1, 0, 1, 3}) {
		t.Fatalf("union=%v", got)
	}
}
