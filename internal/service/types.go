// Package service holds the layer state manager and the catalog and data
// services around it.
package service

import (
	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/style"
)

// Example is one catalog entry. Huma reads the tags for OpenAPI and
// validation.
//
// Style may be a JSON or YAML string or a structured document; it is
// parsed when the example is selected.
type Example struct {
	ID          string        `json:"id" yaml:"id" required:"true" doc:"Unique example identifier" example:"greenland-ice-thickness"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty" doc:"Display name" example:"Greenland Ice Thickness"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty" doc:"Short description"`
	Format      string        `json:"format,omitempty" yaml:"format,omitempty" doc:"Catalog format hint" example:"fgb"`
	DataURL     string        `json:"dataUrl,omitempty" yaml:"dataUrl,omitempty" doc:"Flat data URL used when no layers are declared"`
	Style       any           `json:"style,omitempty" yaml:"style,omitempty" doc:"Style document, structured or as JSON/YAML text"`
	Layers      []layer.Layer `json:"layers,omitempty" yaml:"layers,omitempty" doc:"Structured layer definitions"`
}

// Snapshot is the published state the render sink consumes.
type Snapshot struct {
	Version          uint64         `json:"version" doc:"Increments on every change"`
	Example          string         `json:"example,omitempty" doc:"Selected example id"`
	Style            style.Document `json:"style,omitempty" doc:"Current style document"`
	Layers           []layer.Layer  `json:"layers" doc:"Processed layers in render order"`
	Loading          bool           `json:"loading" doc:"Whether a pipeline run is in flight"`
	Hint             string         `json:"hint,omitempty" doc:"Loading hint while loading"`
	LayerControl     bool           `json:"layerControl" doc:"Whether the layer control is visible"`
	CustomDataLayers bool           `json:"customDataLayers,omitempty" doc:"Layers come from ad-hoc data, not an example"`
}

// DataFile is a local data file that can be used as a layer source.
type DataFile struct {
	Name   string `json:"name" doc:"File name" example:"roads.fgb"`
	URL    string `json:"url" doc:"URL relative to the data base URL" example:"/data/roads.fgb"`
	Size   string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	Format string `json:"format" doc:"Data format" example:"FlatGeoBuf"`
}
