package domain

import "encoding/json"

// PageResult is a single page of an OData collection response.
type PageResult struct {
	// Records holds the page's entities as undecoded JSON objects.
	Records []json.RawMessage
	// NextLink is the server-issued continuation URL; empty on the last page.
	NextLink string
	// TotalCount is @odata.count when the request asked for it.
	TotalCount *int64
	// DeltaLink is @odata.deltaLink when change tracking is enabled.
	DeltaLink string
	// Context is @odata.context.
	Context string
}

// HasMore reports whether another page is available.
func (p *PageResult) HasMore() bool {
	return p.NextLink != ""
}
