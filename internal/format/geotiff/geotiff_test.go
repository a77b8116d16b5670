package geotiff

import (
	"bytes"
	"errors"
	"testing"

	ft "github.com/joeblew999/plat-style/internal/format/formattest"
)

func TestDecode_NotTIFF(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("II"), []byte("PK\x03\x04 zip file"), []byte("II\x2b\x00\x04\x00\x00\x00")} {
		if _, err := Decode(bytes.NewReader(in)); !errors.Is(err, ErrNotTIFF) {
			t.Fatalf("Decode(%q) err=%v, want ErrNotTIFF", in, err)
		}
	}
}

func TestBoundingBox_Tiepoint(t *testing.T) {
	cases := []struct {
		name string
		tiff ft.TIFF
	}{
		{"little endian", ft.TIFF{}},
		{"big endian", ft.TIFF{BigEndian: true}},
		{"bigtiff", ft.TIFF{BigTIFF: true}},
		{"bigtiff big endian", ft.TIFF{BigTIFF: true, BigEndian: true}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tf := c.tiff
			tf.Width, tf.Height = 100, 50
			tf.PixelScale = []float64{10, 10, 0}
			tf.Tiepoint = []float64{0, 0, 0, 500000, 4000000, 0}
			tf.GeoKeys = map[uint16]uint16{1024: 1, ProjectedCSTypeGeoKey: 32636}

			im, err := Decode(bytes.NewReader(tf.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			if im.Width != 100 || im.Height != 50 {
				t.Fatalf("size=%dx%d", im.Width, im.Height)
			}
			if im.EPSG() != 32636 {
				t.Fatalf("EPSG=%d, want 32636", im.EPSG())
			}
			bb, err := im.BoundingBox()
			if err != nil {
				t.Fatal(err)
			}
			want := [4]float64{500000, 3999500, 501000, 4000000}
			if bb != want {
				t.Fatalf("bbox=%v, want %v", bb, want)
			}
		})
	}
}

func TestBoundingBox_TiepointOffset(t *testing.T) {
	// tiepoint anchored at pixel (10, 20) instead of the corner
	tf := ft.TIFF{
		Width: 10, Height: 10,
		PixelScale: []float64{1, 1, 0},
		Tiepoint:   []float64{10, 20, 0, 110, 180, 0},
	}
	im, err := Decode(bytes.NewReader(tf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	bb, _ := im.BoundingBox()
	if want := [4]float64{100, 190, 110, 200}; bb != want {
		t.Fatalf("bbox=%v, want %v", bb, want)
	}
}

func TestBoundingBox_Transformation(t *testing.T) {
	tf := ft.TIFF{
		Width: 4, Height: 2,
		Transformation: []float64{
			0.5, 0, 0, 10,
			0, -0.5, 0, 50,
			0, 0, 0, 0,
			0, 0, 0, 1,
		},
		GeoKeys: map[uint16]uint16{GeographicTypeGeoKey: 4326},
	}
	im, err := Decode(bytes.NewReader(tf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if im.EPSG() != 4326 {
		t.Fatalf("EPSG=%d, want 4326", im.EPSG())
	}
	bb, err := im.BoundingBox()
	if err != nil {
		t.Fatal(err)
	}
	if want := [4]float64{10, 49, 12, 50}; bb != want {
		t.Fatalf("bbox=%v, want %v", bb, want)
	}
}

func TestEPSG_Precedence(t *testing.T) {
	cases := []struct {
		keys map[uint16]uint16
		want int
	}{
		{map[uint16]uint16{ProjectedCSTypeGeoKey: 3857, GeographicTypeGeoKey: 4326}, 3857},
		{map[uint16]uint16{ProjectedCSTypeGeoKey: 32767, GeographicTypeGeoKey: 4326}, 4326},
		{map[uint16]uint16{GeographicTypeGeoKey: 32767}, 0},
		{nil, 0},
	}
	for _, c := range cases {
		im := &Image{GeoKeys: c.keys}
		if got := im.EPSG(); got != c.want {
			t.Fatalf("EPSG(%v)=%d, want %d", c.keys, got, c.want)
		}
	}
}

func TestBoundingBox_NoGeoreference(t *testing.T) {
	im, err := Decode(bytes.NewReader(ft.TIFF{Width: 8, Height: 8}.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := im.BoundingBox(); !errors.Is(err, ErrNoGeoreference) {
		t.Fatalf("err=%v, want ErrNoGeoreference", err)
	}
}
