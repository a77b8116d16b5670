// Package geotiff reads the georeferencing of the first image in a TIFF or
// BigTIFF file. Pixel data is never touched, so over a range reader only
// the header and the first directory are downloaded.
package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrNotTIFF         = errors.New("geotiff: not a tiff file")
	ErrNoGeoreference  = errors.New("geotiff: image has no georeference")
	errTruncated       = errors.New("geotiff: truncated directory")
	errUnsupportedType = errors.New("geotiff: unsupported field type")
)

// TIFF tags read from the first directory.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
)

// GeoKeys carrying the CRS code.
const (
	GeographicTypeGeoKey  = 2048
	ProjectedCSTypeGeoKey = 3072

	userDefined = 32767
)

// maxEntries guards against garbage directory counts.
const maxEntries = 4096

type Image struct {
	Width, Height  int
	PixelScale     []float64
	Tiepoint       []float64
	Transformation []float64
	GeoKeys        map[uint16]uint16
}

// EPSG returns the projected CRS code, else the geographic one, else 0.
// User-defined codes count as absent.
func (im *Image) EPSG() int {
	for _, k := range []uint16{ProjectedCSTypeGeoKey, GeographicTypeGeoKey} {
		if v := im.GeoKeys[k]; v != 0 && v != userDefined {
			return int(v)
		}
	}
	return 0
}

// Origin is the model coordinate of the upper-left pixel corner.
func (im *Image) Origin() (x, y float64, err error) {
	switch {
	case len(im.Tiepoint) >= 6:
		sx, sy := 0.0, 0.0
		if len(im.PixelScale) >= 2 {
			sx, sy = im.PixelScale[0], im.PixelScale[1]
		}
		return im.Tiepoint[3] - im.Tiepoint[0]*sx, im.Tiepoint[4] + im.Tiepoint[1]*sy, nil
	case len(im.Transformation) >= 8:
		return im.Transformation[3], im.Transformation[7], nil
	}
	return 0, 0, ErrNoGeoreference
}

// Resolution is the signed pixel size; y is negative for north-up images.
func (im *Image) Resolution() (x, y float64, err error) {
	switch {
	case len(im.PixelScale) >= 2:
		return im.PixelScale[0], -im.PixelScale[1], nil
	case len(im.Transformation) >= 6:
		return im.Transformation[0], im.Transformation[5], nil
	}
	return 0, 0, ErrNoGeoreference
}

// BoundingBox returns [minX, minY, maxX, maxY] in the image CRS.
func (im *Image) BoundingBox() ([4]float64, error) {
	ox, oy, err := im.Origin()
	if err != nil {
		return [4]float64{}, err
	}
	rx, ry, err := im.Resolution()
	if err != nil {
		return [4]float64{}, err
	}
	x2 := ox + rx*float64(im.Width)
	y2 := oy + ry*float64(im.Height)
	return [4]float64{math.Min(ox, x2), math.Min(oy, y2), math.Max(ox, x2), math.Max(oy, y2)}, nil
}

type decoder struct {
	r   io.ReaderAt
	bo  binary.ByteOrder
	big bool
}

// Decode parses the header and first directory of r.
func Decode(r io.ReaderAt) (*Image, error) {
	var hdr [16]byte
	n, err := r.ReadAt(hdr[:], 0)
	if n < 8 {
		if err == nil || err == io.EOF {
			err = ErrNotTIFF
		}
		return nil, err
	}

	d := &decoder{r: r}
	switch string(hdr[:2]) {
	case "II":
		d.bo = binary.LittleEndian
	case "MM":
		d.bo = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}

	var ifd uint64
	switch d.bo.Uint16(hdr[2:]) {
	case 42:
		ifd = uint64(d.bo.Uint32(hdr[4:]))
	case 43:
		if n < 16 || d.bo.Uint16(hdr[4:]) != 8 {
			return nil, ErrNotTIFF
		}
		d.big = true
		ifd = d.bo.Uint64(hdr[8:])
	default:
		return nil, ErrNotTIFF
	}
	return d.readIFD(int64(ifd))
}

func (d *decoder) readIFD(off int64) (*Image, error) {
	countSize, entrySize := 2, 12
	if d.big {
		countSize, entrySize = 8, 20
	}
	cb := make([]byte, countSize)
	if n, err := d.r.ReadAt(cb, off); n < countSize {
		return nil, truncated(err)
	}
	var count uint64
	if d.big {
		count = d.bo.Uint64(cb)
	} else {
		count = uint64(d.bo.Uint16(cb))
	}
	if count == 0 || count > maxEntries {
		return nil, fmt.Errorf("%w: %d entries", errTruncated, count)
	}

	entries := make([]byte, int(count)*entrySize)
	if n, err := d.r.ReadAt(entries, off+int64(countSize)); n < len(entries) {
		return nil, truncated(err)
	}

	im := &Image{GeoKeys: map[uint16]uint16{}}
	for i := range int(count) {
		e := entries[i*entrySize : (i+1)*entrySize]
		tag := d.bo.Uint16(e[0:])
		switch tag {
		case tagImageWidth, tagImageLength, tagModelPixelScale, tagModelTiepoint, tagModelTransformation, tagGeoKeyDirectory:
		default:
			continue
		}
		vals, err := d.values(e)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
		switch tag {
		case tagImageWidth:
			if len(vals) > 0 {
				im.Width = int(vals[0])
			}
		case tagImageLength:
			if len(vals) > 0 {
				im.Height = int(vals[0])
			}
		case tagModelPixelScale:
			im.PixelScale = vals
		case tagModelTiepoint:
			im.Tiepoint = vals
		case tagModelTransformation:
			im.Transformation = vals
		case tagGeoKeyDirectory:
			parseGeoKeys(vals, im.GeoKeys)
		}
	}
	return im, nil
}

// values decodes a numeric field as float64s, reading out of line data when
// it does not fit in the entry.
func (d *decoder) values(e []byte) ([]float64, error) {
	typ := d.bo.Uint16(e[2:])
	var count uint64
	var inline []byte
	if d.big {
		count = d.bo.Uint64(e[4:])
		inline = e[12:20]
	} else {
		count = uint64(d.bo.Uint32(e[4:]))
		inline = e[8:12]
	}
	size := typeSize(typ)
	if size == 0 {
		return nil, errUnsupportedType
	}
	if count > 1<<16 {
		return nil, fmt.Errorf("%w: count %d", errTruncated, count)
	}

	raw := inline
	if total := int(count) * size; total > len(inline) {
		var off uint64
		if d.big {
			off = d.bo.Uint64(inline)
		} else {
			off = uint64(d.bo.Uint32(inline))
		}
		raw = make([]byte, total)
		if n, err := d.r.ReadAt(raw, int64(off)); n < total {
			return nil, truncated(err)
		}
	}

	out := make([]float64, count)
	for i := range out {
		b := raw[i*size:]
		switch typ {
		case 1, 7:
			out[i] = float64(b[0])
		case 6:
			out[i] = float64(int8(b[0]))
		case 3:
			out[i] = float64(d.bo.Uint16(b))
		case 8:
			out[i] = float64(int16(d.bo.Uint16(b)))
		case 4, 13:
			out[i] = float64(d.bo.Uint32(b))
		case 9:
			out[i] = float64(int32(d.bo.Uint32(b)))
		case 11:
			out[i] = float64(math.Float32frombits(d.bo.Uint32(b)))
		case 12:
			out[i] = math.Float64frombits(d.bo.Uint64(b))
		case 16, 18:
			out[i] = float64(d.bo.Uint64(b))
		case 17:
			out[i] = float64(int64(d.bo.Uint64(b)))
		case 5:
			out[i] = ratio(float64(d.bo.Uint32(b)), float64(d.bo.Uint32(b[4:])))
		case 10:
			out[i] = ratio(float64(int32(d.bo.Uint32(b))), float64(int32(d.bo.Uint32(b[4:]))))
		}
	}
	return out, nil
}

func truncated(err error) error {
	if err == nil || err == io.EOF {
		return errTruncated
	}
	return fmt.Errorf("%w: %w", errTruncated, err)
}

func ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11, 13:
		return 4
	case 5, 10, 12, 16, 17, 18:
		return 8
	}
	return 0
}

// parseGeoKeys reads the inline SHORT keys of a GeoKeyDirectory.
func parseGeoKeys(dir []float64, keys map[uint16]uint16) {
	if len(dir) < 4 {
		return
	}
	n := int(dir[3])
	for i := range n {
		base := 4 + i*4
		if base+3 >= len(dir) {
			return
		}
		if dir[base+1] != 0 {
			continue
		}
		keys[uint16(dir[base])] = uint16(dir[base+3])
	}
}
