// Package formattest builds small FlatGeobuf and GeoTIFF buffers for tests.
package formattest

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// FlatGeobuf geometry type codes.
const (
	Unknown uint8 = iota
	Point
	LineString
	Polygon
	MultiPoint
	MultiLineString
	MultiPolygon
	GeometryCollection
)

type Geom struct {
	Type  uint8
	XY    []float64
	Ends  []uint32
	Parts []Geom
}

type Feature struct {
	Geom  *Geom
	Props []byte
}

type Column struct {
	Name string
	Type uint8
}

// FGB describes a FlatGeobuf file. Index adds a zero-filled packed R-tree
// of the right size.
type FGB struct {
	GeometryType uint8
	Columns      []Column
	CRS          int
	Envelope     []float64
	Index        bool
	Features     []Feature
}

// Points is a file of Point features in the header CRS.
func Points(crs int, pts ...[2]float64) []byte {
	f := FGB{GeometryType: Point, CRS: crs}
	for _, p := range pts {
		f.Features = append(f.Features, Feature{Geom: &Geom{XY: []float64{p[0], p[1]}}})
	}
	return f.Bytes()
}

func (f FGB) Bytes() []byte {
	out := []byte{'f', 'g', 'b', 3, 'f', 'g', 'b', 0}
	out = append(out, sizePrefixed(f.header)...)
	if f.Index && len(f.Features) > 0 {
		out = append(out, make([]byte, treeSize(uint64(len(f.Features)), 16))...)
	}
	for _, feat := range f.Features {
		out = append(out, sizePrefixed(feat.build)...)
	}
	return out
}

func (f FGB) header(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	var cols []flatbuffers.UOffsetT
	for _, c := range f.Columns {
		name := b.CreateString(c.Name)
		b.StartObject(2)
		b.PrependUOffsetTSlot(0, name, 0)
		b.PrependUint8Slot(1, c.Type, 0)
		cols = append(cols, b.EndObject())
	}
	var colVec, envVec, crs flatbuffers.UOffsetT
	if len(cols) > 0 {
		colVec = offsetVector(b, cols)
	}
	if len(f.Envelope) > 0 {
		envVec = float64Vector(b, f.Envelope)
	}
	if f.CRS != 0 {
		org := b.CreateString("EPSG")
		b.StartObject(2)
		b.PrependUOffsetTSlot(0, org, 0)
		b.PrependInt32Slot(1, int32(f.CRS), 0)
		crs = b.EndObject()
	}
	name := b.CreateString("test")

	b.StartObject(14)
	b.PrependUOffsetTSlot(0, name, 0)
	if envVec != 0 {
		b.PrependUOffsetTSlot(1, envVec, 0)
	}
	b.PrependUint8Slot(2, f.GeometryType, 0)
	if colVec != 0 {
		b.PrependUOffsetTSlot(7, colVec, 0)
	}
	b.PrependUint64Slot(8, uint64(len(f.Features)), 0)
	nodeSize := uint16(0)
	if f.Index {
		nodeSize = 16
	}
	b.PrependUint16Slot(9, nodeSize, 16)
	if crs != 0 {
		b.PrependUOffsetTSlot(10, crs, 0)
	}
	return b.EndObject()
}

func (feat Feature) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	var geom, props flatbuffers.UOffsetT
	if feat.Geom != nil {
		geom = buildGeometry(b, *feat.Geom)
	}
	if len(feat.Props) > 0 {
		props = b.CreateByteVector(feat.Props)
	}
	b.StartObject(3)
	if geom != 0 {
		b.PrependUOffsetTSlot(0, geom, 0)
	}
	if props != 0 {
		b.PrependUOffsetTSlot(1, props, 0)
	}
	return b.EndObject()
}

func buildGeometry(b *flatbuffers.Builder, g Geom) flatbuffers.UOffsetT {
	var parts []flatbuffers.UOffsetT
	for _, p := range g.Parts {
		parts = append(parts, buildGeometry(b, p))
	}
	var partsVec, xyVec, endsVec flatbuffers.UOffsetT
	if len(parts) > 0 {
		partsVec = offsetVector(b, parts)
	}
	if len(g.XY) > 0 {
		xyVec = float64Vector(b, g.XY)
	}
	if len(g.Ends) > 0 {
		b.StartVector(4, len(g.Ends), 4)
		for i := len(g.Ends) - 1; i >= 0; i-- {
			b.PrependUint32(g.Ends[i])
		}
		endsVec = b.EndVector(len(g.Ends))
	}
	b.StartObject(8)
	if endsVec != 0 {
		b.PrependUOffsetTSlot(0, endsVec, 0)
	}
	if xyVec != 0 {
		b.PrependUOffsetTSlot(1, xyVec, 0)
	}
	b.PrependUint8Slot(6, g.Type, 0)
	if partsVec != 0 {
		b.PrependUOffsetTSlot(7, partsVec, 0)
	}
	return b.EndObject()
}

func sizePrefixed(build func(b *flatbuffers.Builder) flatbuffers.UOffsetT) []byte {
	b := flatbuffers.NewBuilder(256)
	b.FinishSizePrefixed(build(b))
	return b.FinishedBytes()
}

func float64Vector(b *flatbuffers.Builder, vs []float64) flatbuffers.UOffsetT {
	b.StartVector(8, len(vs), 8)
	for i := len(vs) - 1; i >= 0; i-- {
		b.PrependFloat64(vs[i])
	}
	return b.EndVector(len(vs))
}

func offsetVector(b *flatbuffers.Builder, offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offs), 4)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}

func treeSize(n uint64, nodeSize uint64) uint64 {
	total := n
	for level := n; level != 1; {
		level = (level + nodeSize - 1) / nodeSize
		total += level
	}
	return total * 40
}
