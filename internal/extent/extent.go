// Package extent computes the bounding box of a data source in the target
// projection (Web Mercator unless configured otherwise).
//
// Every calculator follows the same path: fetch the bytes, decode them
// into geometries, flatten every coordinate, project it and keep a running
// min/max. Results, including "no extent", are cached per URL. Fetch
// failures are not cached so a later call can succeed.
package extent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-style/internal/cache"
	"github.com/joeblew999/plat-style/internal/fetch"
	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/metrics"
	"github.com/joeblew999/plat-style/internal/reproject"
)

// ErrNoExtent means the source holds no valid coordinate, or could not be
// decoded. It is a soft outcome, never a zero box.
var ErrNoExtent = errors.New("extent: no extent available")

// Calculator computes the extent of the resource at url.
type Calculator interface {
	Extent(ctx context.Context, url string) (geo.BBox, error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, url string) (geo.BBox, error)

func (f CalculatorFunc) Extent(ctx context.Context, url string) (geo.BBox, error) {
	return f(ctx, url)
}

// Options are shared by all calculators.
type Options struct {
	Fetcher   fetch.Fetcher
	Projector reproject.Projector
	// Target defaults to Web Mercator.
	Target  reproject.CRS
	Cache   cache.Config
	Logger  zerolog.Logger
	Metrics *metrics.Pipeline
}

func (o Options) withDefaults() Options {
	if o.Fetcher == nil {
		h, _ := fetch.NewHTTP(fetch.Options{})
		o.Fetcher = h
	}
	if o.Projector == nil {
		o.Projector = reproject.Default
	}
	if o.Target == "" {
		o.Target = reproject.WebMercator
	}
	return o
}

// FetchError marks a failure to obtain the source bytes.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// outcome is what the extent cache stores; ok=false is the "no extent"
// marker.
type outcome struct {
	bbox geo.BBox
	ok   bool
}

type engine struct {
	format  string
	opts    Options
	log     zerolog.Logger
	extents *cache.Loader[outcome]
}

func newEngine(format, cacheName string, opts Options) engine {
	opts = opts.withDefaults()
	return engine{
		format:  format,
		opts:    opts,
		log:     opts.Logger.With().Str("format", format).Logger(),
		extents: cache.NewLoader[outcome](cacheName, opts.Cache, opts.Metrics),
	}
}

// extent runs compute through the per-URL extent cache. compute reports
// fetch problems as *FetchError; any other error is a decode failure and
// is cached as "no extent".
func (e *engine) extent(ctx context.Context, url string, compute func(context.Context) (geo.BBox, error)) (geo.BBox, error) {
	start := time.Now()
	var decodeErr error
	out, hit, err := e.extents.Get(ctx, cache.Key(e.format, url), func(ctx context.Context) (outcome, error) {
		bb, err := compute(ctx)
		var fe *FetchError
		switch {
		case err == nil:
			return outcome{bbox: bb, ok: true}, nil
		case errors.As(err, &fe):
			return outcome{}, err
		case errors.Is(err, ErrNoExtent):
			return outcome{}, nil
		default:
			decodeErr = err
			return outcome{}, nil
		}
	})

	log := e.log.With().Str("url", url).Logger()
	switch {
	case err != nil:
		e.opts.Metrics.Extent(e.format, "error")
		log.Error().Err(err).Msg("extent fetch failed")
		return geo.BBox{}, err
	case hit:
		log.Debug().Bool("ok", out.ok).Msg("extent cache hit")
	case decodeErr != nil:
		e.opts.Metrics.Extent(e.format, "error")
		log.Error().Err(decodeErr).Msg("extent decode failed")
		return geo.BBox{}, fmt.Errorf("%w: %w", ErrNoExtent, decodeErr)
	case !out.ok:
		e.opts.Metrics.Extent(e.format, "empty")
		log.Warn().Msg("no valid coordinates")
	default:
		e.opts.Metrics.Extent(e.format, "ok")
		log.Debug().Floats64("extent", out.bbox.Slice()).Dur("took", time.Since(start)).Msg("extent computed")
	}
	if !out.ok {
		return geo.BBox{}, ErrNoExtent
	}
	return out.bbox, nil
}

// geometries yields decoded geometries until fn returns false; a decode
// error stops the walk.
type geometries func(fn func(orb.Geometry) bool) error

// bounds flattens, projects and accumulates every coordinate of src.
func (e *engine) bounds(src geometries, from reproject.CRS) (geo.BBox, error) {
	acc := geo.NewAccumulator()
	var projErr error
	err := src(func(g orb.Geometry) bool {
		if g == nil {
			return true
		}
		return geo.EachPoint(g, func(p orb.Point) bool {
			q, err := e.opts.Projector.Project(p, from, e.opts.Target)
			if err != nil {
				projErr = err
				return false
			}
			acc.Add(q)
			return true
		})
	})
	if err != nil {
		return geo.BBox{}, err
	}
	if projErr != nil {
		return geo.BBox{}, projErr
	}
	bb, ok := acc.Extent()
	if !ok {
		return geo.BBox{}, ErrNoExtent
	}
	return bb, nil
}

// corners projects the two corners of a source-CRS box and orders them.
func (e *engine) corners(bb [4]float64, from reproject.CRS) (geo.BBox, error) {
	acc := geo.NewAccumulator()
	for _, p := range []orb.Point{{bb[0], bb[1]}, {bb[2], bb[3]}} {
		q, err := e.opts.Projector.Project(p, from, e.opts.Target)
		if err != nil {
			return geo.BBox{}, err
		}
		acc.Add(q)
	}
	out, ok := acc.Extent()
	if !ok {
		return geo.BBox{}, ErrNoExtent
	}
	return out, nil
}

func (e *engine) fetch(ctx context.Context, url string) ([]byte, error) {
	b, err := e.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return b, nil
}
