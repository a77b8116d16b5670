package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-style/internal/extent"
	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/pipeline"
)

type FormatsBody struct {
	Handlers []string `json:"handlers" doc:"Registered handler identifiers"`
	Default  string   `json:"default" doc:"Fallback handler" example:"default"`
}

type ExtentBody struct {
	URL    string `json:"url" required:"true" minLength:"1" doc:"Data URL" example:"/data/roads.fgb"`
	Format string `json:"format,omitempty" doc:"Handler identifier; detected from the URL when empty" example:"FlatGeoBuf"`
}

type ExtentResult struct {
	URL    string    `json:"url" doc:"Measured URL"`
	Format string    `json:"format" doc:"Handler that measured it"`
	Found  bool      `json:"found" doc:"Whether an extent was found"`
	Extent []float64 `json:"extent,omitempty" doc:"Extent in Web Mercator as [minX, minY, maxX, maxY]"`
}

type FeaturesInput struct {
	URL string `query:"url" required:"true" doc:"FlatGeobuf URL" example:"/data/roads.fgb"`
}

type FeaturesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type ProcessBody struct {
	Layers []layer.Layer `json:"layers" doc:"Layer definitions"`
	Style  any           `json:"style,omitempty" doc:"Editor style applied to every layer"`
}

type ValidateBody struct {
	URL string `json:"url" required:"true" minLength:"1" doc:"URL to check" example:"https://example.com/data.fgb"`
}

type ValidateResult struct {
	URL   string `json:"url" doc:"Checked URL"`
	Valid bool   `json:"valid" doc:"Whether a HEAD request succeeded"`
}

// RegisterTools registers the stateless extent, feature, process and
// validation routes.
func (h *APIHandler) RegisterTools(api huma.API) {
	huma.Get(api, "/api/v1/formats", h.GetFormats, huma.OperationTags("tools"))
	huma.Post(api, "/api/v1/extent", h.ComputeExtent, huma.OperationTags("tools"))
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("tools"))
	huma.Post(api, "/api/v1/process", h.Process, huma.OperationTags("tools"))
	huma.Post(api, "/api/v1/validate", h.Validate, huma.OperationTags("tools"))
}

func (h *APIHandler) GetFormats(ctx context.Context, input *struct{}) (*struct{ Body FormatsBody }, error) {
	return &struct{ Body FormatsBody }{Body: FormatsBody{
		Handlers: h.svc.Processor.Registry().IDs(),
		Default:  pipeline.DefaultID,
	}}, nil
}

func (h *APIHandler) ComputeExtent(ctx context.Context, input *struct{ Body ExtentBody }) (*struct{ Body ExtentResult }, error) {
	format := input.Body.Format
	if format == "" {
		format = pipeline.HandlerID(input.Body.URL)
	}
	calc, id, ok := h.svc.Processor.Registry().Calculator(format)
	if !ok {
		return nil, huma.Error422UnprocessableEntity("no extent calculator for format " + id)
	}
	res := ExtentResult{URL: input.Body.URL, Format: id}
	bb, err := calc.Extent(ctx, input.Body.URL)
	var fe *extent.FetchError
	switch {
	case err == nil:
		res.Found = true
		res.Extent = bb.Slice()
	case errors.As(err, &fe):
		return nil, huma.Error502BadGateway(err.Error())
	case !errors.Is(err, extent.ErrNoExtent):
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &struct{ Body ExtentResult }{Body: res}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *FeaturesInput) (*FeaturesOutput, error) {
	if h.svc.Calcs.FlatGeobuf == nil {
		return nil, huma.Error503ServiceUnavailable("FlatGeobuf support not available")
	}
	fc, err := h.svc.Calcs.FlatGeobuf.FeatureCollection(ctx, input.URL)
	if err != nil {
		var fe *extent.FetchError
		if errors.As(err, &fe) {
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &FeaturesOutput{ContentType: "application/geo+json", Body: b}, nil
}

func (h *APIHandler) Process(ctx context.Context, input *struct{ Body ProcessBody }) (*LayersOutput, error) {
	st, err := parseStyle(input.Body.Style)
	if err != nil {
		return nil, err
	}
	return &LayersOutput{Body: h.svc.Processor.ProcessLayers(ctx, input.Body.Layers, st)}, nil
}

func (h *APIHandler) Validate(ctx context.Context, input *struct{ Body ValidateBody }) (*struct{ Body ValidateResult }, error) {
	if h.svc.Fetcher == nil {
		return nil, huma.Error503ServiceUnavailable("fetcher not available")
	}
	return &struct{ Body ValidateResult }{Body: ValidateResult{
		URL:   input.Body.URL,
		Valid: h.svc.Fetcher.Validate(ctx, input.Body.URL),
	}}, nil
}
