package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-style/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/state>; rel="state"`,
		`</api/v1/examples>; rel="examples"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/formats>; rel="formats"`,
	},
	"/api/v1/examples": {
		`</api/v1/state/example>; rel="select"`,
	},
	"/api/v1/examples/{id}": {
		`</api/v1/examples>; rel="collection"`,
	},
	"/api/v1/state": {
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/state/style>; rel="style"`,
		`</api/v1/events>; rel="events"`,
	},
	"/api/v1/layers": {
		`</api/v1/state>; rel="state"`,
		`</api/v1/sources>; rel="sources"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/extent>; rel="extent"`,
	},
	"/api/v1/formats": {
		`</api/v1/extent>; rel="extent"`,
		`</api/v1/process>; rel="process"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		// item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
