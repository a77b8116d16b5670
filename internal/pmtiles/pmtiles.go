// Package pmtiles reads the fixed PMTiles v3 header and the JSON metadata
// block of an archive. Tiles and directories are never read; the layer
// pipeline only needs the archive bounds.
//
// Layout: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNotPMTiles  = errors.New("pmtiles: magic number not detected")
	ErrShortHeader = errors.New("pmtiles: buffer too small for header")
)

// Compression is the compression algorithm applied to tiles and metadata.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

// TileType is the format of individual tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

func (t TileType) String() string {
	switch t {
	case Mvt:
		return "mvt"
	case Png:
		return "png"
	case Jpeg:
		return "jpeg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	}
	return "unknown"
}

// HeaderLen is the size of the fixed v3 header.
const HeaderLen = 127

// Header is the fixed v3 header. Coordinates are WGS84 degrees * 1e7.
type Header struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom, MaxZoom    uint8
	MinLonE7, MinLatE7  int32
	MaxLonE7, MaxLatE7  int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Bounds returns [minLon, minLat, maxLon, maxLat] in degrees.
func (h Header) Bounds() [4]float64 {
	return [4]float64{e7(h.MinLonE7), e7(h.MinLatE7), e7(h.MaxLonE7), e7(h.MaxLatE7)}
}

// Center returns the center lon/lat in degrees.
func (h Header) Center() (lon, lat float64) {
	return e7(h.CenterLonE7), e7(h.CenterLatE7)
}

func e7(v int32) float64 { return float64(v) / 1e7 }

// E7 converts degrees to the header's fixed-point form.
func E7(deg float64) int32 {
	if deg < 0 {
		return int32(deg*1e7 - 0.5)
	}
	return int32(deg*1e7 + 0.5)
}

var le = binary.LittleEndian

// ParseHeader decodes the first HeaderLen bytes of an archive.
func ParseHeader(d []byte) (Header, error) {
	var h Header
	if len(d) < 7 || string(d[0:7]) != "PMTiles" {
		return h, ErrNotPMTiles
	}
	if len(d) < HeaderLen {
		return h, ErrShortHeader
	}
	h.SpecVersion = d[7]
	if h.SpecVersion != 3 {
		return h, fmt.Errorf("pmtiles: unsupported spec version %d", h.SpecVersion)
	}
	h.RootOffset = le.Uint64(d[8:])
	h.RootLength = le.Uint64(d[16:])
	h.MetadataOffset = le.Uint64(d[24:])
	h.MetadataLength = le.Uint64(d[32:])
	h.TileDataOffset = le.Uint64(d[56:])
	h.TileDataLength = le.Uint64(d[64:])
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(le.Uint32(d[102:]))
	h.MinLatE7 = int32(le.Uint32(d[106:]))
	h.MaxLonE7 = int32(le.Uint32(d[110:]))
	h.MaxLatE7 = int32(le.Uint32(d[114:]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))
	return h, nil
}

// AppendHeader encodes h after b. Directory and tile counters are left zero.
func AppendHeader(b []byte, h Header) []byte {
	out := make([]byte, HeaderLen)
	copy(out, "PMTiles")
	out[7] = 3
	le.PutUint64(out[8:], h.RootOffset)
	le.PutUint64(out[16:], h.RootLength)
	le.PutUint64(out[24:], h.MetadataOffset)
	le.PutUint64(out[32:], h.MetadataLength)
	le.PutUint64(out[56:], h.TileDataOffset)
	le.PutUint64(out[64:], h.TileDataLength)
	out[97] = uint8(h.InternalCompression)
	out[98] = uint8(h.TileCompression)
	out[99] = uint8(h.TileType)
	out[100] = h.MinZoom
	out[101] = h.MaxZoom
	le.PutUint32(out[102:], uint32(h.MinLonE7))
	le.PutUint32(out[106:], uint32(h.MinLatE7))
	le.PutUint32(out[110:], uint32(h.MaxLonE7))
	le.PutUint32(out[114:], uint32(h.MaxLatE7))
	out[118] = h.CenterZoom
	le.PutUint32(out[119:], uint32(h.CenterLonE7))
	le.PutUint32(out[123:], uint32(h.CenterLatE7))
	return append(b, out...)
}

// ParseMetadata decodes the JSON metadata block using the archive's
// internal compression.
func ParseMetadata(d []byte, c Compression) (map[string]any, error) {
	var r io.Reader = bytes.NewReader(d)
	switch c {
	case NoCompression, UnknownCompression:
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles metadata: %w", err)
		}
		defer gz.Close()
		r = gz
	default:
		return nil, fmt.Errorf("pmtiles metadata: compression %d not supported", c)
	}
	var md map[string]any
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("pmtiles metadata: %w", err)
	}
	return md, nil
}
