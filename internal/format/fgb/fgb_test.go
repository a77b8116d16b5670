package fgb

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/paulmach/orb"

	ft "github.com/joeblew999/plat-style/internal/format/formattest"
)

func TestNewReader_BadMagic(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("not a flatgeobuf file"), []byte(`{"type":"FeatureCollection"}`)} {
		if _, err := NewReader(in); !errors.Is(err, ErrInvalidMagic) {
			t.Fatalf("NewReader(%q) err=%v, want ErrInvalidMagic", in, err)
		}
	}
}

func TestReader_Header(t *testing.T) {
	buf := ft.FGB{
		GeometryType: ft.Point,
		CRS:          3857,
		Envelope:     []float64{1, 2, 3, 4},
		Columns:      []ft.Column{{Name: "name", Type: uint8(ColString)}},
		Features:     []ft.Feature{{Geom: &ft.Geom{XY: []float64{1, 2}}}},
	}.Bytes()

	r, err := NewReader(buf)
	if err != nil {
		t.Fatal(err)
	}
	h := r.Header()
	if h.Name != "test" || h.GeometryType != Point || h.FeaturesCount != 1 {
		t.Fatalf("header=%+v", h)
	}
	if code, ok := h.EPSG(); !ok || code != 3857 {
		t.Fatalf("EPSG=%d,%v want 3857", code, ok)
	}
	if len(h.Envelope) != 4 || h.Envelope[2] != 3 {
		t.Fatalf("envelope=%v", h.Envelope)
	}
	if len(h.Columns) != 1 || h.Columns[0].Name != "name" || h.Columns[0].Type != ColString {
		t.Fatalf("columns=%+v", h.Columns)
	}
}

func TestReader_Geometries(t *testing.T) {
	buf := ft.FGB{
		GeometryType: ft.Unknown,
		Index:        true,
		Features: []ft.Feature{
			{Geom: &ft.Geom{Type: ft.Point, XY: []float64{10, 20}}},
			{Geom: &ft.Geom{Type: ft.LineString, XY: []float64{0, 0, 1, 1, 2, 0}}},
			{Geom: &ft.Geom{Type: ft.Polygon, XY: []float64{0, 0, 4, 0, 4, 4, 0, 0, 1, 1, 2, 1, 2, 2, 1, 1}, Ends: []uint32{4, 8}}},
			{Geom: &ft.Geom{Type: ft.MultiPolygon, Parts: []ft.Geom{
				{Type: ft.Polygon, XY: []float64{0, 0, 1, 0, 1, 1, 0, 0}},
				{Type: ft.Polygon, XY: []float64{5, 5, 6, 5, 6, 6, 5, 5}},
			}}},
			{Geom: &ft.Geom{Type: ft.GeometryCollection, Parts: []ft.Geom{
				{Type: ft.Point, XY: []float64{-7, 8}},
				{Type: ft.MultiPoint, XY: []float64{1, 1, 2, 2}},
			}}},
		},
	}.Bytes()

	r, err := NewReader(buf)
	if err != nil {
		t.Fatal(err)
	}

	var got []orb.Geometry
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, f.Geometry)
	}
	if len(got) != 5 {
		t.Fatalf("features=%d, want 5", len(got))
	}
	if p, ok := got[0].(orb.Point); !ok || p != (orb.Point{10, 20}) {
		t.Fatalf("point=%v", got[0])
	}
	if ls, ok := got[1].(orb.LineString); !ok || len(ls) != 3 {
		t.Fatalf("linestring=%v", got[1])
	}
	if pg, ok := got[2].(orb.Polygon); !ok || len(pg) != 2 || len(pg[1]) != 4 {
		t.Fatalf("polygon=%v", got[2])
	}
	if mp, ok := got[3].(orb.MultiPolygon); !ok || len(mp) != 2 || mp[1][0][2] != (orb.Point{6, 6}) {
		t.Fatalf("multipolygon=%v", got[3])
	}
	c, ok := got[4].(orb.Collection)
	if !ok || len(c) != 2 {
		t.Fatalf("collection=%v", got[4])
	}
	if b := c.Bound(); b.Min != (orb.Point{-7, 1}) || b.Max != (orb.Point{2, 8}) {
		t.Fatalf("collection bound=%v", b)
	}
}

func TestReader_Properties(t *testing.T) {
	var props []byte
	le := binary.LittleEndian
	props = le.AppendUint16(props, 0)
	props = le.AppendUint32(props, 5)
	props = append(props, "hello"...)
	props = le.AppendUint16(props, 1)
	props = le.AppendUint64(props, math.Float64bits(2.5))
	props = le.AppendUint16(props, 2)
	rank := int32(-3)
	props = le.AppendUint32(props, uint32(rank))
	props = le.AppendUint16(props, 3)
	props = append(props, 1)

	buf := ft.FGB{
		GeometryType: ft.Point,
		Columns: []ft.Column{
			{Name: "name", Type: uint8(ColString)},
			{Name: "value", Type: uint8(ColDouble)},
			{Name: "rank", Type: uint8(ColInt)},
			{Name: "ok", Type: uint8(ColBool)},
		},
		Features: []ft.Feature{{Geom: &ft.Geom{XY: []float64{0, 0}}, Props: props}},
	}.Bytes()

	r, err := NewReader(buf)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d, want 1", len(fc.Features))
	}
	p := fc.Features[0].Properties
	if p["name"] != "hello" || p["value"] != 2.5 || p["rank"] != int32(-3) || p["ok"] != true {
		t.Fatalf("properties=%v", p)
	}
}

func TestReader_Truncated(t *testing.T) {
	buf := ft.FGB{
		GeometryType: ft.Point,
		Features:     []ft.Feature{{Geom: &ft.Geom{XY: []float64{1, 1}}}},
	}.Bytes()

	r, err := NewReader(buf[:len(buf)-3])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("err=%v, want ErrInvalidData", err)
	}
}

func TestTreeSize(t *testing.T) {
	cases := []struct {
		n    uint64
		want uint64
	}{
		{1, 40},
		{16, (16 + 1) * 40},
		{17, (17 + 2 + 1) * 40},
		{300, (300 + 19 + 2 + 1) * 40},
	}
	for _, c := range cases {
		if got := treeSize(c.n, 16); got != c.want {
			t.Fatalf("treeSize(%d)=%d, want %d", c.n, got, c.want)
		}
	}
}
