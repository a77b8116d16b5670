package extent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/reproject"
)

// GeoJSON measures GeoJSON documents. A FeatureCollection, a single
// Feature and a bare geometry are all accepted; coordinates are WGS84.
type GeoJSON struct {
	engine
}

func NewGeoJSON(opts Options) *GeoJSON {
	return &GeoJSON{engine: newEngine("GeoJSON", "geojson-extent", opts)}
}

func (c *GeoJSON) Extent(ctx context.Context, url string) (geo.BBox, error) {
	return c.extent(ctx, url, func(ctx context.Context) (geo.BBox, error) {
		data, err := c.fetch(ctx, url)
		if err != nil {
			return geo.BBox{}, err
		}
		geoms, err := DecodeGeoJSON(data)
		if err != nil {
			return geo.BBox{}, err
		}
		if len(geoms) == 0 {
			return geo.BBox{}, ErrNoExtent
		}
		return c.bounds(func(fn func(orb.Geometry) bool) error {
			for _, g := range geoms {
				if !fn(g) {
					break
				}
			}
			return nil
		}, reproject.WGS84)
	})
}

// DecodeGeoJSON returns the geometries of a GeoJSON document.
func DecodeGeoJSON(data []byte) ([]orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []orb.Geometry{f.Geometry}, nil
	case "":
		return nil, fmt.Errorf("geojson: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		return []orb.Geometry{g.Geometry()}, nil
	}
}
