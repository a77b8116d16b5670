package humastar

import "fmt"

// Pager is implemented by response bodies that carry pagination metadata.
// The API's link transformer turns its values into Link headers.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageInput is embedded in inputs of paginated list operations.
type PageInput struct {
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Index of the first item"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page cuts one page out of items. Data is never nil.
func Page[T any](items []T, in PageInput) PageBody[T] {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(max(in.Offset, 0), len(items))
	end := min(start+limit, len(items))
	return PageBody[T]{
		Total:  len(items),
		Offset: start,
		Limit:  limit,
		Data:   append([]T{}, items[start:end]...),
	}
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	var links []string

	links = append(links, fmt.Sprintf(`<%s?offset=0&limit=%d>; rel="first"`, basePath, p.Limit))

	if p.Offset > 0 {
		prev := max(p.Offset-p.Limit, 0)
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="prev"`, basePath, prev, p.Limit))
	}

	if p.Offset+p.Limit < p.Total {
		links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="next"`, basePath, p.Offset+p.Limit, p.Limit))
	}

	lastOffset := max(((p.Total-1)/p.Limit)*p.Limit, 0)
	links = append(links, fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="last"`, basePath, lastOffset, p.Limit))

	return links
}
