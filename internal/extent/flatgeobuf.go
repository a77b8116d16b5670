package extent

import (
	"context"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-style/internal/cache"
	"github.com/joeblew999/plat-style/internal/format/fgb"
	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/reproject"
)

// FlatGeobuf measures .fgb files. Raw buffers are cached separately from
// extents so the features endpoint reuses them.
type FlatGeobuf struct {
	engine
	buffers *cache.Loader[[]byte]
}

func NewFlatGeobuf(opts Options) *FlatGeobuf {
	c := &FlatGeobuf{engine: newEngine("FlatGeobuf", "fgb-extent", opts)}
	c.buffers = cache.NewLoader[[]byte]("fgb-buffer", c.opts.Cache, c.opts.Metrics)
	return c
}

// Buffer returns the raw file, fetched at most once per URL.
func (c *FlatGeobuf) Buffer(ctx context.Context, url string) ([]byte, error) {
	b, _, err := c.buffers.Get(ctx, cache.Key("fgb", url), func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, url)
	})
	return b, err
}

// FeatureCollection decodes the whole file as GeoJSON, coordinates as
// stored.
func (c *FlatGeobuf) FeatureCollection(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	buf, err := c.Buffer(ctx, url)
	if err != nil {
		return nil, err
	}
	r, err := fgb.NewReader(buf)
	if err != nil {
		return nil, err
	}
	return r.ReadAll()
}

// Extent reprojects from the header CRS, or from WGS84 when the header
// declares none.
func (c *FlatGeobuf) Extent(ctx context.Context, url string) (geo.BBox, error) {
	return c.extent(ctx, url, func(ctx context.Context) (geo.BBox, error) {
		buf, err := c.Buffer(ctx, url)
		if err != nil {
			return geo.BBox{}, err
		}
		r, err := fgb.NewReader(buf)
		if err != nil {
			return geo.BBox{}, err
		}
		from := reproject.WGS84
		if code, ok := r.Header().EPSG(); ok {
			from = reproject.EPSG(code)
		}
		return c.bounds(func(fn func(orb.Geometry) bool) error {
			for {
				f, err := r.Next()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if !fn(f.Geometry) {
					return nil
				}
			}
		}, from)
	})
}
