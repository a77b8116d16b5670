package geo

import "github.com/paulmach/orb"

// EachPoint calls fn for every coordinate pair of g, however deeply nested.
// Collections recurse into their members, so heterogeneous
// GeometryCollections go through the same walk as simple geometries.
// Returning false from fn stops the walk.
func EachPoint(g orb.Geometry, fn func(orb.Point) bool) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.Point:
		return fn(g)
	case orb.MultiPoint:
		return eachPoints(g, fn)
	case orb.LineString:
		return eachPoints(g, fn)
	case orb.Ring:
		return eachPoints(g, fn)
	case orb.MultiLineString:
		for _, ls := range g {
			if !eachPoints(ls, fn) {
				return false
			}
		}
	case orb.Polygon:
		for _, r := range g {
			if !eachPoints(r, fn) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if !EachPoint(p, fn) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range g {
			if !EachPoint(c, fn) {
				return false
			}
		}
	case orb.Bound:
		return fn(g.Min) && fn(g.Max)
	}
	return true
}

func eachPoints(ps []orb.Point, fn func(orb.Point) bool) bool {
	for _, p := range ps {
		if !fn(p) {
			return false
		}
	}
	return true
}
