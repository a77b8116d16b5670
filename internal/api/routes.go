// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-style/internal/fetch"
	"github.com/joeblew999/plat-style/internal/humastar"
	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/pipeline"
	"github.com/joeblew999/plat-style/internal/service"
	"github.com/joeblew999/plat-style/internal/style"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	State     *service.StateService
	Catalog   *service.CatalogService
	Data      *service.DataService
	Processor *pipeline.Processor
	Calcs     pipeline.Calculators
	Fetcher   *fetch.HTTP
	Log       zerolog.Logger
	Version   string
}

// RegisterRoutes registers every REST and SSE route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(svc).RegisterRoutes(api)
	NewEventHandler(svc.State, svc.Catalog).RegisterRoutes(api)
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"FgbLayer"`
}

type ExampleIDInput struct {
	ID string `path:"id" doc:"Example ID" example:"africa"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type SnapshotOutput struct {
	Body service.Snapshot
}

type StateOutput struct {
	ETag string `header:"ETag" doc:"Hash of the snapshot"`
	Body service.Snapshot
}

type LayersOutput struct {
	Body []layer.Layer
}

type SelectExampleBody struct {
	ID      string           `json:"id,omitempty" doc:"Catalog example to select" example:"greenland-ice-thickness"`
	Example *service.Example `json:"example,omitempty" doc:"Inline example, used instead of the catalog"`
}

type StyleBody struct {
	Style any `json:"style" doc:"Style document, structured or as JSON/YAML text"`
}

type CustomLayersBody struct {
	Layers []layer.Layer `json:"layers" doc:"Layer definitions to process"`
}

type LayerControlBody struct {
	Visible bool `json:"visible" doc:"Whether the layer control is now visible"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterExamples registers the example catalog routes.
func (h *APIHandler) RegisterExamples(api huma.API) {
	huma.Get(api, "/api/v1/examples", h.ListExamples, huma.OperationTags("examples"))
	huma.Get(api, "/api/v1/examples/{id}", h.GetExample, huma.OperationTags("examples"))
}

// RegisterState registers the layer state routes.
func (h *APIHandler) RegisterState(api huma.API) {
	huma.Get(api, "/api/v1/state", h.GetState, huma.OperationTags("state"))
	huma.Put(api, "/api/v1/state/example", h.SelectExample, huma.OperationTags("state"))
	huma.Delete(api, "/api/v1/state/example", h.ClearExample, huma.OperationTags("state"))
	huma.Put(api, "/api/v1/state/style", h.UpdateStyle, huma.OperationTags("state"))
	huma.Post(api, "/api/v1/state/layer-control/toggle", h.ToggleLayerControl, huma.OperationTags("state"))
}

// RegisterLayers registers the current layer list routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Register(api, huma.Operation{
		OperationID:   "add-layer",
		Method:        http.MethodPost,
		Path:          "/api/v1/layers",
		Summary:       "Add layer",
		Tags:          []string{"layers"},
		DefaultStatus: http.StatusCreated,
	}, h.AddLayer)
	huma.Put(api, "/api/v1/layers", h.SetCustomDataLayers, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers", h.ClearAllLayers, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.RemoveLayer, huma.OperationTags("layers"))
}

// RegisterSources registers the data file listing.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: h.svc.Version}}, nil
}

func (h *APIHandler) ListExamples(ctx context.Context, input *struct{}) (*struct{ Body []service.Example }, error) {
	return &struct{ Body []service.Example }{Body: h.svc.Catalog.List()}, nil
}

func (h *APIHandler) GetExample(ctx context.Context, input *ExampleIDInput) (*struct{ Body service.Example }, error) {
	ex, err := h.svc.Catalog.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body service.Example }{Body: ex}, nil
}

func (h *APIHandler) GetState(ctx context.Context, input *struct{}) (*StateOutput, error) {
	snap := h.svc.State.Snapshot()
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &StateOutput{ETag: fmt.Sprintf(`"%016x"`, xxhash.Sum64(b)), Body: snap}, nil
}

func (h *APIHandler) SelectExample(ctx context.Context, input *struct{ Body SelectExampleBody }) (*SnapshotOutput, error) {
	var ex service.Example
	switch {
	case input.Body.Example != nil:
		ex = *input.Body.Example
	case input.Body.ID != "":
		var err error
		if ex, err = h.svc.Catalog.Get(input.Body.ID); err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
	default:
		return nil, huma.Error400BadRequest("id or example is required")
	}
	snap, err := h.svc.State.SelectExample(ctx, ex)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &SnapshotOutput{Body: snap}, nil
}

func (h *APIHandler) ClearExample(ctx context.Context, input *struct{}) (*SnapshotOutput, error) {
	return &SnapshotOutput{Body: h.svc.State.ClearExample()}, nil
}

func (h *APIHandler) UpdateStyle(ctx context.Context, input *struct{ Body StyleBody }) (*SnapshotOutput, error) {
	snap, err := h.svc.State.UpdateStyle(ctx, input.Body.Style)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &SnapshotOutput{Body: snap}, nil
}

func (h *APIHandler) ToggleLayerControl(ctx context.Context, input *struct{}) (*struct{ Body LayerControlBody }, error) {
	return &struct{ Body LayerControlBody }{Body: LayerControlBody{Visible: h.svc.State.ToggleLayerControl()}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	return &LayersOutput{Body: h.svc.State.Snapshot().Layers}, nil
}

func (h *APIHandler) AddLayer(ctx context.Context, input *struct{ Body layer.Layer }) (*struct{ Body layer.Layer }, error) {
	if input.Body.Type == "" {
		return nil, huma.Error422UnprocessableEntity("layer type is required")
	}
	return &struct{ Body layer.Layer }{Body: h.svc.State.AddLayer(input.Body)}, nil
}

func (h *APIHandler) SetCustomDataLayers(ctx context.Context, input *struct{ Body CustomLayersBody }) (*SnapshotOutput, error) {
	return &SnapshotOutput{Body: h.svc.State.SetCustomDataLayers(ctx, input.Body.Layers)}, nil
}

func (h *APIHandler) ClearAllLayers(ctx context.Context, input *struct{}) (*SnapshotOutput, error) {
	return &SnapshotOutput{Body: h.svc.State.ClearAllLayers()}, nil
}

func (h *APIHandler) RemoveLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.State.RemoveLayer(input.ID); err != nil {
		if errors.Is(err, service.ErrLayerNotFound) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer removed"}}, nil
}

type SourcesInput struct {
	humastar.PageInput
}

func (h *APIHandler) GetSources(ctx context.Context, input *SourcesInput) (*struct{ Body humastar.PageBody[service.DataFile] }, error) {
	var files []service.DataFile
	if h.svc.Data != nil {
		var err error
		if files, err = h.svc.Data.List(); err != nil {
			h.svc.Log.Warn().Err(err).Msg("list data files")
		}
	}
	return &struct{ Body humastar.PageBody[service.DataFile] }{Body: humastar.Page(files, input.PageInput)}, nil
}

// parseStyle turns a request style into a document or a 400.
func parseStyle(v any) (style.Document, error) {
	st, err := style.Parse(v)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return st, nil
}
