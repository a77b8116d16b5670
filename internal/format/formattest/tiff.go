package formattest

import (
	"encoding/binary"
	"math"
	"slices"
)

// TIFF describes a single-directory GeoTIFF without pixel data.
type TIFF struct {
	BigEndian      bool
	BigTIFF        bool
	Width, Height  int
	PixelScale     []float64
	Tiepoint       []float64
	Transformation []float64
	GeoKeys        map[uint16]uint16
}

// NorthUp is a w x h image whose upper-left corner is (x, y) with square
// pixels of size res, tagged with epsg (0 for none).
func NorthUp(epsg int, x, y, res float64, w, h int) []byte {
	t := TIFF{
		Width:      w,
		Height:     h,
		PixelScale: []float64{res, res, 0},
		Tiepoint:   []float64{0, 0, 0, x, y, 0},
	}
	if epsg != 0 {
		key := uint16(2048)
		if epsg != 4326 {
			key = 3072
		}
		t.GeoKeys = map[uint16]uint16{key: uint16(epsg)}
	}
	return t.Bytes()
}

type tiffEntry struct {
	tag, typ uint16
	count    int
	data     []byte
}

func (t TIFF) Bytes() []byte {
	var bo binary.ByteOrder = binary.LittleEndian
	if t.BigEndian {
		bo = binary.BigEndian
	}

	doubles := func(vs []float64) []byte {
		var b []byte
		for _, v := range vs {
			b = bo.AppendUint64(b, math.Float64bits(v))
		}
		return b
	}
	shorts := func(vs []uint16) []byte {
		var b []byte
		for _, v := range vs {
			b = bo.AppendUint16(b, v)
		}
		return b
	}

	entries := []tiffEntry{
		{tag: 256, typ: 4, count: 1, data: bo.AppendUint32(nil, uint32(t.Width))},
		{tag: 257, typ: 4, count: 1, data: bo.AppendUint32(nil, uint32(t.Height))},
	}
	if len(t.PixelScale) > 0 {
		entries = append(entries, tiffEntry{33550, 12, len(t.PixelScale), doubles(t.PixelScale)})
	}
	if len(t.Tiepoint) > 0 {
		entries = append(entries, tiffEntry{33922, 12, len(t.Tiepoint), doubles(t.Tiepoint)})
	}
	if len(t.Transformation) > 0 {
		entries = append(entries, tiffEntry{34264, 12, len(t.Transformation), doubles(t.Transformation)})
	}
	if len(t.GeoKeys) > 0 {
		keys := make([]uint16, 0, len(t.GeoKeys))
		for k := range t.GeoKeys {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		dir := []uint16{1, 1, 0, uint16(len(keys))}
		for _, k := range keys {
			dir = append(dir, k, 0, 1, t.GeoKeys[k])
		}
		entries = append(entries, tiffEntry{34735, 3, len(dir), shorts(dir)})
	}

	headerSize, countSize, entrySize, inlineSize := 8, 2, 12, 4
	if t.BigTIFF {
		headerSize, countSize, entrySize, inlineSize = 16, 8, 20, 8
	}

	var out []byte
	if t.BigEndian {
		out = append(out, 'M', 'M')
	} else {
		out = append(out, 'I', 'I')
	}
	if t.BigTIFF {
		out = bo.AppendUint16(out, 43)
		out = bo.AppendUint16(out, 8)
		out = bo.AppendUint16(out, 0)
		out = bo.AppendUint64(out, uint64(headerSize))
	} else {
		out = bo.AppendUint16(out, 42)
		out = bo.AppendUint32(out, uint32(headerSize))
	}

	ifdSize := countSize + len(entries)*entrySize + inlineSize
	extra := headerSize + ifdSize
	var tail []byte

	if t.BigTIFF {
		out = bo.AppendUint64(out, uint64(len(entries)))
	} else {
		out = bo.AppendUint16(out, uint16(len(entries)))
	}
	for _, e := range entries {
		out = bo.AppendUint16(out, e.tag)
		out = bo.AppendUint16(out, e.typ)
		if t.BigTIFF {
			out = bo.AppendUint64(out, uint64(e.count))
		} else {
			out = bo.AppendUint32(out, uint32(e.count))
		}
		if len(e.data) <= inlineSize {
			val := make([]byte, inlineSize)
			copy(val, e.data)
			out = append(out, val...)
			continue
		}
		off := extra + len(tail)
		if t.BigTIFF {
			out = bo.AppendUint64(out, uint64(off))
		} else {
			out = bo.AppendUint32(out, uint32(off))
		}
		tail = append(tail, e.data...)
	}
	out = append(out, make([]byte, inlineSize)...)
	return append(out, tail...)
}
