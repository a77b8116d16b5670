package extent

import (
	"bytes"
	"context"
	"io"
	"math"

	"github.com/joeblew999/plat-style/internal/fetch"
	"github.com/joeblew999/plat-style/internal/format/geotiff"
	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/reproject"
)

// GeoTIFF measures GeoTIFF and COG images from their georeference tags.
// With a range-capable fetcher only the header blocks are downloaded.
type GeoTIFF struct {
	engine
	blockSize int64
}

func NewGeoTIFF(opts Options) *GeoTIFF {
	return &GeoTIFF{engine: newEngine("GeoTIFF", "geotiff-extent", opts), blockSize: 64 << 10}
}

// Extent applies the CRS policy to the image bbox:
//
//   - the target code passes through
//   - any other code is projected corner by corner, falling back to the
//     raw bbox when the code is unsupported
//   - without a code, values outside lon/lat ranges are taken as already
//     projected; anything else is treated as WGS84
func (c *GeoTIFF) Extent(ctx context.Context, url string) (geo.BBox, error) {
	return c.extent(ctx, url, func(ctx context.Context) (geo.BBox, error) {
		im, err := c.decode(ctx, url)
		if err != nil {
			return geo.BBox{}, err
		}
		bb, err := im.BoundingBox()
		if err != nil {
			return geo.BBox{}, err
		}
		raw := geo.BBox(bb)
		if !raw.Valid() {
			return geo.BBox{}, ErrNoExtent
		}

		code := im.EPSG()
		target, _ := c.opts.Target.Code()
		switch {
		case code != 0 && code == target:
			return raw, nil
		case code != 0:
			out, err := c.corners(bb, reproject.EPSG(code))
			if err != nil {
				c.log.Warn().Str("url", url).Int("epsg", code).Err(err).Msg("reprojection failed, using raw bbox")
				return raw, nil
			}
			return out, nil
		case looksProjected(bb):
			c.log.Warn().Str("url", url).Msg("no CRS code and coordinates look projected, using raw bbox")
			return raw, nil
		default:
			return c.corners(bb, reproject.WGS84)
		}
	})
}

func looksProjected(bb [4]float64) bool {
	return math.Abs(bb[0]) > 180 || math.Abs(bb[2]) > 180 || math.Abs(bb[1]) > 90 || math.Abs(bb[3]) > 90
}

func (c *GeoTIFF) decode(ctx context.Context, url string) (*geotiff.Image, error) {
	var r io.ReaderAt
	if rf, ok := c.opts.Fetcher.(fetch.RangeFetcher); ok {
		r = fetch.NewRangeReader(ctx, rf, url, c.blockSize)
	} else {
		data, err := c.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	rec := &recordingReader{r: r}
	im, err := geotiff.Decode(rec)
	if err != nil && rec.err != nil {
		return nil, &FetchError{URL: url, Err: rec.err}
	}
	return im, err
}

// recordingReader keeps the first transport error seen, telling fetch
// failures apart from malformed files.
type recordingReader struct {
	r   io.ReaderAt
	err error
}

func (rr *recordingReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := rr.r.ReadAt(p, off)
	if err != nil && err != io.EOF && rr.err == nil {
		rr.err = err
	}
	return n, err
}
