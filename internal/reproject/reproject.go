// Package reproject maps 2D points between coordinate reference systems.
//
// Every supported system converts to and from WGS84 longitude/latitude, so
// any pair of registered systems can be chained through it.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

// Well-known EPSG codes.
const (
	CodeWGS84       = 4326
	CodeWebMercator = 3857
)

// ErrUnsupportedCRS is returned when either side of a transform is unknown.
var ErrUnsupportedCRS = errors.New("reproject: unsupported CRS")

// halfWorld is the Web Mercator half extent; projected y is clamped to it.
const halfWorld = math.Pi * orb.EarthRadius

// CRS is a coordinate reference system name such as "EPSG:4326".
type CRS string

// Common systems.
const (
	WGS84       CRS = "EPSG:4326"
	WebMercator CRS = "EPSG:3857"
)

// EPSG returns the CRS name for a numeric code.
func EPSG(code int) CRS {
	return CRS("EPSG:" + strconv.Itoa(code))
}

// Code extracts the numeric EPSG code. It accepts "EPSG:4326", "epsg:4326"
// and a bare "4326".
func (c CRS) Code() (int, bool) {
	s := strings.TrimSpace(string(c))
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Projector is the reprojection collaborator used by the extent calculators.
type Projector interface {
	Project(p orb.Point, from, to CRS) (orb.Point, error)
}

// Projection converts between one CRS and WGS84 lon/lat degrees.
type Projection interface {
	ToWGS84(p orb.Point) orb.Point
	FromWGS84(p orb.Point) orb.Point
	EPSG() int
}

// Registry is a Projector over a set of registered projections.
type Registry struct {
	mu    sync.RWMutex
	projs map[int]Projection
}

// New returns a registry holding WGS84 and Web Mercator. Any other code
// is resolved on first use from the EPSG repository of the wgs84 package.
func New() *Registry {
	r := &Registry{projs: make(map[int]Projection)}
	r.Register(identity{})
	r.Register(webMercator{})
	return r
}

// Register adds or replaces a projection under its EPSG code.
func (r *Registry) Register(p Projection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projs[p.EPSG()] = p
}

// Lookup returns the projection for a code.
func (r *Registry) Lookup(code int) (Projection, bool) {
	r.mu.RLock()
	p, ok := r.projs[code]
	r.mu.RUnlock()
	if ok {
		return p, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projs[code]; ok {
		return p, true
	}
	p, ok = lookupEPSG(code)
	if ok {
		r.projs[code] = p
	}
	return p, ok
}

// Supports reports whether code can be projected.
func (r *Registry) Supports(code int) bool {
	_, ok := r.Lookup(code)
	return ok
}

// Project implements Projector.
func (r *Registry) Project(p orb.Point, from, to CRS) (orb.Point, error) {
	fc, ok := from.Code()
	if !ok {
		return p, fmt.Errorf("%w: %q", ErrUnsupportedCRS, from)
	}
	tc, ok := to.Code()
	if !ok {
		return p, fmt.Errorf("%w: %q", ErrUnsupportedCRS, to)
	}
	if fc == tc {
		return p, nil
	}
	src, ok := r.Lookup(fc)
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnsupportedCRS, from)
	}
	dst, ok := r.Lookup(tc)
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrUnsupportedCRS, to)
	}
	out := dst.FromWGS84(src.ToWGS84(p))
	if math.IsNaN(out[0]) || math.IsNaN(out[1]) {
		return p, fmt.Errorf("reproject: %v outside the domain of %s -> %s", p, from, to)
	}
	return out, nil
}

// Default is the package-level registry.
var Default = New()

// Project transforms p with the default registry.
func Project(p orb.Point, from, to CRS) (orb.Point, error) {
	return Default.Project(p, from, to)
}

type identity struct{}

func (identity) ToWGS84(p orb.Point) orb.Point   { return p }
func (identity) FromWGS84(p orb.Point) orb.Point { return p }
func (identity) EPSG() int                       { return CodeWGS84 }

type webMercator struct{}

func (webMercator) ToWGS84(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}

func (webMercator) FromWGS84(p orb.Point) orb.Point {
	q := project.WGS84.ToMercator(p)
	q[1] = math.Max(-halfWorld, math.Min(halfWorld, q[1]))
	return q
}

func (webMercator) EPSG() int { return CodeWebMercator }

// epsgRepo is only touched under a Registry write lock.
var epsgRepo = wgs84.EPSG()

// epsgProjection is a projection taken from the wgs84 EPSG repository.
type epsgProjection struct {
	code     int
	to, from wgs84.Func
}

func lookupEPSG(code int) (Projection, bool) {
	to, err := epsgRepo.SafeTransform(code, CodeWGS84)
	if err != nil {
		return nil, false
	}
	from, err := epsgRepo.SafeTransform(CodeWGS84, code)
	if err != nil {
		return nil, false
	}
	return epsgProjection{code: code, to: to, from: from}, true
}

func (p epsgProjection) ToWGS84(q orb.Point) orb.Point {
	lon, lat, _ := p.to(q[0], q[1], 0)
	return orb.Point{lon, lat}
}

func (p epsgProjection) FromWGS84(q orb.Point) orb.Point {
	x, y, _ := p.from(q[0], q[1], 0)
	return orb.Point{x, y}
}

func (p epsgProjection) EPSG() int { return p.code }
