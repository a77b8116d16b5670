// Package fgb decodes FlatGeobuf buffers into orb geometries.
//
// Only what the extent and feature endpoints need is read: the header
// (envelope, CRS, columns, counts), the feature geometries and their
// properties. The packed R-tree index is skipped.
package fgb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrInvalidMagic = errors.New("fgb: not a flatgeobuf buffer")
	ErrInvalidData  = errors.New("fgb: invalid data")
)

var magic = []byte{'f', 'g', 'b', 3, 'f', 'g', 'b', 0}

const nodeItemSize = 40

// GeometryType mirrors the FlatGeobuf geometry enum.
type GeometryType uint8

const (
	Unknown GeometryType = iota
	Point
	LineString
	Polygon
	MultiPoint
	MultiLineString
	MultiPolygon
	GeometryCollection
)

var geometryNames = [...]string{"Unknown", "Point", "LineString", "Polygon", "MultiPoint", "MultiLineString", "MultiPolygon", "GeometryCollection"}

func (g GeometryType) String() string {
	if int(g) < len(geometryNames) {
		return geometryNames[g]
	}
	return fmt.Sprintf("GeometryType(%d)", g)
}

// ColumnType mirrors the FlatGeobuf column enum.
type ColumnType uint8

const (
	ColByte ColumnType = iota
	ColUByte
	ColBool
	ColShort
	ColUShort
	ColInt
	ColUInt
	ColLong
	ColULong
	ColFloat
	ColDouble
	ColString
	ColJSON
	ColDateTime
	ColBinary
)

type Column struct {
	Name string
	Type ColumnType
}

// CRS is the header's coordinate reference system, if any.
type CRS struct {
	Org  string
	Code int
}

type Header struct {
	Name          string
	Title         string
	Description   string
	Envelope      []float64
	GeometryType  GeometryType
	HasZ, HasM    bool
	Columns       []Column
	FeaturesCount uint64
	IndexNodeSize uint16
	CRS           *CRS
}

// EPSG returns the header CRS code when it is an EPSG code.
func (h Header) EPSG() (int, bool) {
	if h.CRS == nil || h.CRS.Code == 0 {
		return 0, false
	}
	if h.CRS.Org != "" && h.CRS.Org != "EPSG" {
		return 0, false
	}
	return h.CRS.Code, true
}

// Feature is one decoded record.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// Reader walks the features of an in-memory FlatGeobuf buffer.
type Reader struct {
	buf    []byte
	header Header
	off    int
}

// NewReader validates the magic bytes and decodes the header.
func NewReader(buf []byte) (*Reader, error) {
	if len(buf) < len(magic)+4 || !bytes.Equal(buf[:3], magic[:3]) || !bytes.Equal(buf[4:7], magic[4:7]) {
		return nil, ErrInvalidMagic
	}
	off := len(magic)
	size := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if size <= 0 || off+size > len(buf) {
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidData, size)
	}
	h, err := readHeader(buf[off : off+size])
	if err != nil {
		return nil, err
	}
	off += size

	if h.IndexNodeSize > 0 && h.FeaturesCount > 0 {
		idx := treeSize(h.FeaturesCount, h.IndexNodeSize)
		if uint64(off)+idx > uint64(len(buf)) {
			return nil, fmt.Errorf("%w: index exceeds buffer", ErrInvalidData)
		}
		off += int(idx)
	}
	return &Reader{buf: buf, header: h, off: off}, nil
}

func (r *Reader) Header() Header { return r.header }

// Next decodes the next feature. It returns io.EOF after the last one.
func (r *Reader) Next() (Feature, error) {
	if r.off >= len(r.buf) {
		return Feature{}, io.EOF
	}
	if r.off+4 > len(r.buf) {
		return Feature{}, fmt.Errorf("%w: truncated feature size", ErrInvalidData)
	}
	size := int(binary.LittleEndian.Uint32(r.buf[r.off:]))
	start := r.off + 4
	if size <= 0 || start+size > len(r.buf) {
		return Feature{}, fmt.Errorf("%w: feature size %d at offset %d", ErrInvalidData, size, r.off)
	}
	r.off = start + size
	return r.decodeFeature(r.buf[start : start+size])
}

// ReadAll decodes every remaining feature into a GeoJSON collection.
func (r *Reader) ReadAll() (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for {
		f, err := r.Next()
		if err == io.EOF {
			return fc, nil
		}
		if err != nil {
			return fc, err
		}
		gf := geojson.NewFeature(f.Geometry)
		if f.Properties != nil {
			gf.Properties = f.Properties
		}
		fc.Append(gf)
	}
}

func readHeader(b []byte) (h Header, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: header: %v", ErrInvalidData, p)
		}
	}()
	t := root(b)
	h.Name = str(t, 0)
	h.Envelope = float64s(t, 1)
	h.GeometryType = GeometryType(t.GetUint8Slot(slot(2), 0))
	h.HasZ = t.GetBoolSlot(slot(3), false)
	h.HasM = t.GetBoolSlot(slot(4), false)
	h.FeaturesCount = t.GetUint64Slot(slot(8), 0)
	h.IndexNodeSize = t.GetUint16Slot(slot(9), 16)
	h.Title = str(t, 11)
	h.Description = str(t, 12)

	for _, c := range tables(t, 7) {
		h.Columns = append(h.Columns, Column{
			Name: str(c, 0),
			Type: ColumnType(c.GetUint8Slot(slot(1), 0)),
		})
	}
	if crs, ok := table(t, 10); ok {
		h.CRS = &CRS{Org: str(crs, 0), Code: int(crs.GetInt32Slot(slot(1), 0))}
	}
	return h, nil
}

func (r *Reader) decodeFeature(b []byte) (f Feature, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: feature: %v", ErrInvalidData, p)
		}
	}()
	t := root(b)
	if g, ok := table(t, 0); ok {
		f.Geometry, err = decodeGeometry(g, r.header.GeometryType)
		if err != nil {
			return f, err
		}
	}
	if props := bytesField(t, 1); len(props) > 0 {
		f.Properties, err = decodeProperties(props, r.header.Columns)
	}
	return f, err
}

func decodeGeometry(g flatbuffers.Table, typ GeometryType) (orb.Geometry, error) {
	if typ == Unknown {
		typ = GeometryType(g.GetUint8Slot(slot(6), 0))
	}
	xy := float64s(g, 1)
	ends := uint32s(g, 0)

	switch typ {
	case Point:
		if len(xy) < 2 {
			return nil, nil
		}
		return orb.Point{xy[0], xy[1]}, nil
	case MultiPoint:
		return orb.MultiPoint(points(xy)), nil
	case LineString:
		return orb.LineString(points(xy)), nil
	case MultiLineString:
		var mls orb.MultiLineString
		for _, part := range split(xy, ends) {
			mls = append(mls, orb.LineString(points(part)))
		}
		return mls, nil
	case Polygon:
		return polygon(xy, ends), nil
	case MultiPolygon:
		var mp orb.MultiPolygon
		for _, part := range tables(g, 7) {
			mp = append(mp, polygon(float64s(part, 1), uint32s(part, 0)))
		}
		return mp, nil
	case GeometryCollection:
		var c orb.Collection
		for _, part := range tables(g, 7) {
			sub, err := decodeGeometry(part, Unknown)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				c = append(c, sub)
			}
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: geometry type %s", ErrInvalidData, typ)
}

func polygon(xy []float64, ends []uint32) orb.Polygon {
	var p orb.Polygon
	for _, part := range split(xy, ends) {
		p = append(p, orb.Ring(points(part)))
	}
	return p
}

// split cuts a flat xy array at the given vertex ends.
func split(xy []float64, ends []uint32) [][]float64 {
	if len(ends) == 0 {
		return [][]float64{xy}
	}
	parts := make([][]float64, 0, len(ends))
	prev := 0
	for _, e := range ends {
		end := min(int(e)*2, len(xy))
		if end < prev {
			break
		}
		parts = append(parts, xy[prev:end])
		prev = end
	}
	return parts
}

func points(xy []float64) []orb.Point {
	pts := make([]orb.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		pts = append(pts, orb.Point{xy[i], xy[i+1]})
	}
	return pts
}

func decodeProperties(b []byte, cols []Column) (map[string]any, error) {
	props := make(map[string]any)
	le := binary.LittleEndian
	for off := 0; off < len(b); {
		if off+2 > len(b) {
			return props, fmt.Errorf("%w: truncated property", ErrInvalidData)
		}
		idx := int(le.Uint16(b[off:]))
		off += 2
		if idx >= len(cols) {
			return props, fmt.Errorf("%w: column %d out of range", ErrInvalidData, idx)
		}
		col := cols[idx]
		need := fixedSize(col.Type)
		if need == 0 {
			if off+4 > len(b) {
				return props, fmt.Errorf("%w: truncated %s", ErrInvalidData, col.Name)
			}
			need = int(le.Uint32(b[off:]))
			off += 4
		}
		if off+need > len(b) {
			return props, fmt.Errorf("%w: truncated %s", ErrInvalidData, col.Name)
		}
		v := b[off : off+need]
		off += need

		switch col.Type {
		case ColByte:
			props[col.Name] = int8(v[0])
		case ColUByte:
			props[col.Name] = v[0]
		case ColBool:
			props[col.Name] = v[0] != 0
		case ColShort:
			props[col.Name] = int16(le.Uint16(v))
		case ColUShort:
			props[col.Name] = le.Uint16(v)
		case ColInt:
			props[col.Name] = int32(le.Uint32(v))
		case ColUInt:
			props[col.Name] = le.Uint32(v)
		case ColLong:
			props[col.Name] = int64(le.Uint64(v))
		case ColULong:
			props[col.Name] = le.Uint64(v)
		case ColFloat:
			props[col.Name] = math.Float32frombits(le.Uint32(v))
		case ColDouble:
			props[col.Name] = math.Float64frombits(le.Uint64(v))
		case ColString, ColJSON, ColDateTime:
			props[col.Name] = string(v)
		default:
			props[col.Name] = append([]byte(nil), v...)
		}
	}
	return props, nil
}

func fixedSize(t ColumnType) int {
	switch t {
	case ColByte, ColUByte, ColBool:
		return 1
	case ColShort, ColUShort:
		return 2
	case ColInt, ColUInt, ColFloat:
		return 4
	case ColLong, ColULong, ColDouble:
		return 8
	}
	return 0
}

// treeSize is the byte size of the packed Hilbert R-tree for n items.
func treeSize(n uint64, nodeSize uint16) uint64 {
	ns := uint64(max(nodeSize, 2))
	total := n
	for level := n; level != 1; {
		level = (level + ns - 1) / ns
		total += level
	}
	return total * nodeItemSize
}

// flatbuffers table helpers

func root(b []byte) flatbuffers.Table {
	return flatbuffers.Table{Bytes: b, Pos: flatbuffers.GetUOffsetT(b)}
}

func slot(field int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*field)
}

func str(t flatbuffers.Table, field int) string {
	if o := flatbuffers.UOffsetT(t.Offset(slot(field))); o != 0 {
		return t.String(o + t.Pos)
	}
	return ""
}

func bytesField(t flatbuffers.Table, field int) []byte {
	if o := flatbuffers.UOffsetT(t.Offset(slot(field))); o != 0 {
		return t.ByteVector(o + t.Pos)
	}
	return nil
}

func table(t flatbuffers.Table, field int) (flatbuffers.Table, bool) {
	o := flatbuffers.UOffsetT(t.Offset(slot(field)))
	if o == 0 {
		return flatbuffers.Table{}, false
	}
	return flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}, true
}

func tables(t flatbuffers.Table, field int) []flatbuffers.Table {
	o := flatbuffers.UOffsetT(t.Offset(slot(field)))
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	out := make([]flatbuffers.Table, n)
	for i := range n {
		x := start + flatbuffers.UOffsetT(i*4)
		out[i] = flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(x)}
	}
	return out
}

func float64s(t flatbuffers.Table, field int) []float64 {
	o := flatbuffers.UOffsetT(t.Offset(slot(field)))
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	out := make([]float64, n)
	for i := range n {
		out[i] = flatbuffers.GetFloat64(t.Bytes[start+flatbuffers.UOffsetT(i*8):])
	}
	return out
}

func uint32s(t flatbuffers.Table, field int) []uint32 {
	o := flatbuffers.UOffsetT(t.Offset(slot(field)))
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	out := make([]uint32, n)
	for i := range n {
		out[i] = flatbuffers.GetUint32(t.Bytes[start+flatbuffers.UOffsetT(i*4):])
	}
	return out
}
