package layer

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-style/internal/style"
)

// Format is a data format detected from a URL.
type Format string

const (
	FormatFlatGeobuf Format = "FlatGeobuf"
	FormatGeoJSON    Format = "GeoJSON"
	FormatGeoTIFF    Format = "GeoTIFF"
	FormatUnknown    Format = "Unknown"
)

// DetectFormat guesses a format from the URL suffix, then from substrings.
func DetectFormat(url string) Format {
	u := strings.ToLower(url)

	switch {
	case strings.HasSuffix(u, ".fgb"):
		return FormatFlatGeobuf
	case strings.HasSuffix(u, ".geojson"), strings.HasSuffix(u, ".json"):
		return FormatGeoJSON
	case strings.HasSuffix(u, ".tif"), strings.HasSuffix(u, ".tiff"), strings.HasSuffix(u, ".geotiff"):
		return FormatGeoTIFF
	}

	switch {
	case strings.Contains(u, "json"):
		return FormatGeoJSON
	case strings.Contains(u, "tiff"):
		return FormatGeoTIFF
	case strings.Contains(u, "fgb"), strings.Contains(u, "flatgeobuf"):
		return FormatFlatGeobuf
	}
	return FormatUnknown
}

// GenerateSource builds the source for url. An empty format is detected;
// unknown formats are treated as GeoJSON.
func GenerateSource(url string, f Format) Source {
	if f == "" {
		f = DetectFormat(url)
	}
	switch f {
	case FormatFlatGeobuf:
		return Source{Type: KindVector, URL: url, Format: string(FormatFlatGeobuf)}
	case FormatGeoTIFF:
		return Source{Type: string(FormatGeoTIFF), URL: url}
	default:
		return Source{Type: KindVector, URL: url, Format: string(FormatGeoJSON)}
	}
}

// Dataset is the flat description a single layer is generated from.
type Dataset struct {
	DataURL    string         `json:"dataUrl" yaml:"dataUrl"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Style      style.Document `json:"style,omitempty" yaml:"style,omitempty"`
	Format     Format         `json:"format,omitempty" yaml:"format,omitempty"`
	ID         string         `json:"id,omitempty" yaml:"id,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Generate builds a layer from a dataset. GeoTIFF data becomes a WebGLTile
// layer, everything else a Vector layer. No extent is computed.
func Generate(d Dataset) Layer {
	f := d.Format
	if f == "" {
		f = DetectFormat(d.DataURL)
	}
	src := GenerateSource(d.DataURL, f)

	kind := KindVector
	if f == FormatGeoTIFF {
		kind = KindWebGLTile
	}
	id := d.ID
	if id == "" {
		id = fmt.Sprintf("layer-%d", time.Now().UnixMilli())
	}

	props := map[string]any{"visible": true}
	for k, v := range d.Properties {
		props[k] = v
	}
	return Layer{
		Type:       kind,
		ID:         id,
		Title:      d.Name,
		Properties: props,
		Source:     &src,
		Style:      d.Style.Clone(),
	}
}

// GenerateAll generates one layer per dataset; missing ids become
// "layer-<index>-<unix ms>".
func GenerateAll(ds []Dataset) []Layer {
	ts := time.Now().UnixMilli()
	out := make([]Layer, len(ds))
	for i, d := range ds {
		if d.ID == "" {
			d.ID = fmt.Sprintf("layer-%d-%d", i, ts)
		}
		out[i] = Generate(d)
	}
	return out
}
