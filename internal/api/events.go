package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-style/internal/humastar"
	"github.com/joeblew999/plat-style/internal/service"
)

// EventHandler streams the published layer state to the render sink as
// Datastar signal patches, and accepts Datastar actions that change it.
type EventHandler struct {
	state   *service.StateService
	catalog *service.CatalogService
}

func NewEventHandler(state *service.StateService, catalog *service.CatalogService) *EventHandler {
	return &EventHandler{state: state, catalog: catalog}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
	huma.Post(api, "/api/v1/actions/example", h.SelectExample, huma.OperationTags("events"))
	huma.Post(api, "/api/v1/actions/style", h.UpdateStyle, huma.OperationTags("events"))
}

// signals is the Datastar form of a snapshot.
func signals(s service.Snapshot) map[string]any {
	return map[string]any{
		"version":      s.Version,
		"example":      s.Example,
		"layers":       s.Layers,
		"loading":      s.Loading,
		"hint":         s.Hint,
		"layerControl": s.LayerControl,
	}
}

// Events sends the current state, then every change until the client
// goes away.
func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return humastar.Stream(func(sse humastar.SSE) {
		ch := h.state.Bus().Subscribe()
		defer h.state.Bus().Unsubscribe(ch)

		if err := sse.Signals(signals(h.state.Snapshot())); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if err := sse.Signals(signals(ev.Snapshot)); err != nil {
					return
				}
			}
		}
	}), nil
}

// SelectExample reads the "example" signal and selects that catalog entry.
func (h *EventHandler) SelectExample(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sig, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := sig.String("example")
	if id == "" {
		return nil, huma.Error400BadRequest("example signal is required")
	}
	return humastar.Stream(func(sse humastar.SSE) {
		ex, err := h.catalog.Get(id)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		snap, err := h.state.SelectExample(ctx, ex)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		_ = sse.Signals(signals(snap))
	}), nil
}

// UpdateStyle reads the "style" signal, a document or its text form.
func (h *EventHandler) UpdateStyle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sig, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if !sig.Has("style") {
		return nil, huma.Error400BadRequest("style signal is required")
	}
	return humastar.Stream(func(sse humastar.SSE) {
		snap, err := h.state.UpdateStyle(ctx, sig["style"])
		if err != nil {
			sse.Error(err.Error())
			return
		}
		_ = sse.Signals(signals(snap))
	}), nil
}
