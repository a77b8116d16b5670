// Package layer defines the map layer descriptors that flow from the
// catalog through the pipeline to the render sink.
package layer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/style"
)

// Layer kinds understood by the render sink.
const (
	KindVector    = "Vector"
	KindWebGLTile = "WebGLTile"
)

// Property keys set by the pipeline.
const (
	PropID               = "id"
	PropLayerConfig      = "layerConfig"
	PropExtentCalculated = "__extentCalculated"
)

type SourceRef struct {
	URL string `json:"url" yaml:"url"`
}

// Source describes where a layer's data comes from. Format, when set, is
// more specific than Type.
type Source struct {
	Type    string      `json:"type,omitempty" yaml:"type,omitempty"`
	Format  string      `json:"format,omitempty" yaml:"format,omitempty"`
	URL     string      `json:"url,omitempty" yaml:"url,omitempty"`
	Sources []SourceRef `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// Layer is both the raw definition and the processed descriptor.
// Processing never mutates a Layer in place; it works on a Clone.
type Layer struct {
	Type         string           `json:"type" yaml:"type"`
	ID           string           `json:"id,omitempty" yaml:"id,omitempty"`
	Title        string           `json:"title,omitempty" yaml:"title,omitempty"`
	Properties   map[string]any   `json:"properties,omitempty" yaml:"properties,omitempty"`
	Source       *Source          `json:"source,omitempty" yaml:"source,omitempty"`
	Style        style.Document   `json:"style,omitempty" yaml:"style,omitempty"`
	Interactions []map[string]any `json:"interactions,omitempty" yaml:"interactions,omitempty"`
	Extent       []float64        `json:"extent,omitempty" yaml:"extent,omitempty"`
}

// EditorConfig is attached to vector layers for the style editor.
type EditorConfig struct {
	Schema any            `json:"schema,omitempty"`
	Style  style.Document `json:"style,omitempty"`
	Legend any            `json:"legend,omitempty"`
}

// Clone returns a deep copy.
func (l Layer) Clone() Layer {
	out := l
	if l.Properties != nil {
		out.Properties = style.Document(l.Properties).Clone()
	}
	if l.Source != nil {
		s := *l.Source
		s.Sources = append([]SourceRef(nil), l.Source.Sources...)
		out.Source = &s
	}
	out.Style = l.Style.Clone()
	if l.Interactions != nil {
		out.Interactions = make([]map[string]any, len(l.Interactions))
		for i, m := range l.Interactions {
			out.Interactions[i] = style.Document(m).Clone()
		}
	}
	if l.Extent != nil {
		out.Extent = append([]float64(nil), l.Extent...)
	}
	return out
}

// SourceID is the identifier used for handler dispatch: the source format
// when present, else the source type.
func (l Layer) SourceID() string {
	if l.Source == nil {
		return ""
	}
	if l.Source.Format != "" {
		return l.Source.Format
	}
	return l.Source.Type
}

// URLs lists the source URL and every sub-source URL, skipping blanks.
func (l Layer) URLs() []string {
	if l.Source == nil {
		return nil
	}
	var out []string
	if u := strings.TrimSpace(l.Source.URL); u != "" {
		out = append(out, u)
	}
	for _, s := range l.Source.Sources {
		if u := strings.TrimSpace(s.URL); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Bounds returns the layer extent when it is a valid 4-element box.
func (l Layer) Bounds() (geo.BBox, bool) {
	return geo.FromSlice(l.Extent)
}

// Property returns a string property, or "".
func (l Layer) Property(key string) string {
	s, _ := l.Properties[key].(string)
	return s
}

// SetProperty sets a property, allocating the map if needed.
func (l *Layer) SetProperty(key string, v any) {
	if l.Properties == nil {
		l.Properties = map[string]any{}
	}
	l.Properties[key] = v
}

// AssignID picks the layer id: properties.id, then id, then a new one. The
// choice is written to both places.
func (l *Layer) AssignID() string {
	id := l.Property(PropID)
	if id == "" {
		id = l.ID
	}
	if id == "" {
		id = NewID()
	}
	l.ID = id
	l.SetProperty(PropID, id)
	return id
}

// NewID returns "layer-<unix ms>-<random hex>", unique within a process.
func NewID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("layer-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b[:]))
}
