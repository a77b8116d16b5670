package extent

import (
	"context"

	"github.com/joeblew999/plat-style/internal/fetch"
	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/pmtiles"
	"github.com/joeblew999/plat-style/internal/reproject"
)

// PMTiles measures PMTiles v3 archives from the lon/lat bounds stored in
// the fixed header.
type PMTiles struct {
	engine
}

func NewPMTiles(opts Options) *PMTiles {
	return &PMTiles{engine: newEngine("PMTiles", "pmtiles-extent", opts)}
}

// Header reads the archive header, with a range request when possible.
func (c *PMTiles) Header(ctx context.Context, url string) (pmtiles.Header, error) {
	var data []byte
	var err error
	if rf, ok := c.opts.Fetcher.(fetch.RangeFetcher); ok {
		data, err = rf.FetchRange(ctx, url, 0, pmtiles.HeaderLen)
		if err != nil {
			err = &FetchError{URL: url, Err: err}
		}
	} else {
		data, err = c.fetch(ctx, url)
	}
	if err != nil {
		return pmtiles.Header{}, err
	}
	return pmtiles.ParseHeader(data)
}

func (c *PMTiles) Extent(ctx context.Context, url string) (geo.BBox, error) {
	return c.extent(ctx, url, func(ctx context.Context) (geo.BBox, error) {
		h, err := c.Header(ctx, url)
		if err != nil {
			return geo.BBox{}, err
		}
		bb := h.Bounds()
		if !geo.BBox(bb).Valid() || (bb[0] == bb[2] && bb[1] == bb[3]) {
			return geo.BBox{}, ErrNoExtent
		}
		return c.corners(bb, reproject.WGS84)
	})
}
