package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc *Services
}

func NewInfoHandler(svc *Services) *InfoHandler {
	return &InfoHandler{svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir,omitempty" doc:"Data directory path"`
	Examples int      `json:"examples" doc:"Number of catalog examples"`
	Formats  []string `json:"formats" doc:"Formats with an extent handler"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-style",
		Version:  h.svc.Version,
		Examples: len(h.svc.Catalog.List()),
		Formats:  h.svc.Processor.Registry().IDs(),
		Features: []string{"extent", "style-variables", "examples", "sse"},
	}
	if h.svc.Data != nil {
		body.DataDir = h.svc.Data.Dir()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
