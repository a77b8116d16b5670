package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-style/internal/extent"
	"github.com/joeblew999/plat-style/internal/geo"
	"github.com/joeblew999/plat-style/internal/layer"
)

// ExtentHandler annotates layers with the extent of their source data.
type ExtentHandler struct {
	// Names are the identifiers this handler accepts, compared without
	// case against the first word of a format or type ("FlatGeoBuf felt").
	Names []string
	Calc  extent.Calculator
	Log   zerolog.Logger
}

func NewExtentHandler(calc extent.Calculator, log zerolog.Logger, names ...string) *ExtentHandler {
	return &ExtentHandler{Names: names, Calc: calc, Log: log}
}

func (h *ExtentHandler) Supports(id string) bool {
	word, _, _ := strings.Cut(strings.TrimSpace(id), " ")
	for _, n := range h.Names {
		if strings.EqualFold(word, n) {
			return true
		}
	}
	return false
}

// ProcessLayer sets the union of the extents of every source URL. A layer
// that already carries a valid extent is returned as is. Sources without
// an extent are skipped; the error of a failed source is returned only
// when no source produced an extent.
func (h *ExtentHandler) ProcessLayer(ctx context.Context, l layer.Layer) (layer.Layer, error) {
	if _, ok := l.Bounds(); ok {
		return l, nil
	}
	var (
		union   geo.BBox
		found   bool
		lastErr error
	)
	for _, u := range l.URLs() {
		bb, err := h.Calc.Extent(ctx, u)
		switch {
		case err == nil:
			if found {
				union = union.Union(bb)
			} else {
				union, found = bb, true
			}
		case errors.Is(err, extent.ErrNoExtent):
			h.Log.Warn().Str("layer", l.ID).Str("url", u).Msg("extent calculation returned nothing")
		default:
			lastErr = err
		}
	}
	if !found {
		return l, lastErr
	}
	l.Extent = union.Slice()
	l.SetProperty(layer.PropExtentCalculated, true)
	return l, nil
}

// Calculators bundles the extent calculators registered by default.
type Calculators struct {
	FlatGeobuf *extent.FlatGeobuf
	GeoJSON    *extent.GeoJSON
	GeoTIFF    *extent.GeoTIFF
	PMTiles    *extent.PMTiles
}

// NewCalculators builds every calculator over one set of options.
func NewCalculators(opts extent.Options) Calculators {
	return Calculators{
		FlatGeobuf: extent.NewFlatGeobuf(opts),
		GeoJSON:    extent.NewGeoJSON(opts),
		GeoTIFF:    extent.NewGeoTIFF(opts),
		PMTiles:    extent.NewPMTiles(opts),
	}
}

// Registry identifiers of the built-in handlers.
const (
	FlatGeobufID = "FlatGeoBuf"
	GeoJSONID    = "GeoJSON"
	GeoTIFFID    = "GeoTIFF"
	PMTilesID    = "PMTiles"
)

// DefaultRegistry registers the FlatGeobuf, GeoJSON and GeoTIFF handlers.
// PMTiles is added afterwards through Register, the same way a caller
// would add its own format.
func DefaultRegistry(c Calculators, log zerolog.Logger) *Registry {
	r := NewRegistry()
	r.Register(FlatGeobufID, NewExtentHandler(c.FlatGeobuf, log, "FlatGeoBuf", "fgb"))
	r.Register(GeoJSONID, NewExtentHandler(c.GeoJSON, log, "GeoJSON"))
	r.Register(GeoTIFFID, NewExtentHandler(c.GeoTIFF, log, "GeoTIFF", "COG"))
	if c.PMTiles != nil {
		r.Register(PMTilesID, NewExtentHandler(c.PMTiles, log, "PMTiles"))
	}
	return r
}

// HandlerID maps a data URL onto the identifier of the handler that can
// measure it, falling back to GeoJSON like legacy generation does.
func HandlerID(url string) string {
	if strings.HasSuffix(strings.ToLower(url), ".pmtiles") {
		return PMTilesID
	}
	switch layer.DetectFormat(url) {
	case layer.FormatFlatGeobuf:
		return FlatGeobufID
	case layer.FormatGeoTIFF:
		return GeoTIFFID
	default:
		return GeoJSONID
	}
}

// Calculator returns the extent calculator behind the handler registered
// for id, and the registry key it was found under.
func (r *Registry) Calculator(id string) (extent.Calculator, string, bool) {
	h, key, ok := r.Lookup(id)
	if !ok {
		return nil, id, false
	}
	eh, ok := h.(*ExtentHandler)
	if !ok {
		return nil, key, false
	}
	return eh.Calc, key, true
}
