package pmtiles

import (
	"bytes"
	"compress/gzip"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		MetadataOffset:      127,
		MetadataLength:      20,
		InternalCompression: Gzip,
		TileType:            Mvt,
		MinZoom:             0,
		MaxZoom:             14,
		MinLonE7:            E7(-10.5),
		MinLatE7:            E7(35.25),
		MaxLonE7:            E7(30),
		MaxLatE7:            E7(60.125),
		CenterZoom:          4,
	}
	h, err := ParseHeader(AppendHeader(nil, in))
	if err != nil {
		t.Fatal(err)
	}
	if want := [4]float64{-10.5, 35.25, 30, 60.125}; h.Bounds() != want {
		t.Fatalf("bounds=%v, want %v", h.Bounds(), want)
	}
	if h.TileType.String() != "mvt" || h.MaxZoom != 14 || h.MetadataOffset != 127 {
		t.Fatalf("header=%+v", h)
	}
}

func TestParseHeader_Errors(t *testing.T) {
	if _, err := ParseHeader([]byte("GeoTIFF")); !errors.Is(err, ErrNotPMTiles) {
		t.Fatalf("err=%v, want ErrNotPMTiles", err)
	}
	if _, err := ParseHeader([]byte("PMTiles\x03")); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("err=%v, want ErrShortHeader", err)
	}
	b := AppendHeader(nil, Header{})
	b[7] = 2
	if _, err := ParseHeader(b); err == nil {
		t.Fatal("expected error for v2 archive")
	}
}

func TestParseMetadata(t *testing.T) {
	raw := []byte(`{"name":"roads","vector_layers":[{"id":"roads"}]}`)

	md, err := ParseMetadata(raw, NoCompression)
	if err != nil || md["name"] != "roads" {
		t.Fatalf("md=%v err=%v", md, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(raw)
	gz.Close()
	md, err = ParseMetadata(buf.Bytes(), Gzip)
	if err != nil || md["name"] != "roads" {
		t.Fatalf("gzip md=%v err=%v", md, err)
	}

	if _, err := ParseMetadata(raw, Zstd); err == nil {
		t.Fatal("expected error for zstd")
	}
}
