package dynamics

import (
	"strconv"
	"strings"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// BuildQueryString renders opts as an OData query string for product.
//
// Parameters are always emitted in the order $select, $filter, $top, $skip,
// $orderby, $expand, $count, cross-company. The filter and orderby text is
// passed through untouched; callers supply valid OData syntax. cross-company is
// only emitted for Finance & Operations and is silently dropped otherwise.
// Returns "" when no option is set.
func BuildQueryString(opts domain.QueryOptions, product domain.Product) string {
	var params []string

	if len(opts.Select) > 0 {
		params = append(params, "$select="+strings.Join(opts.Select, ","))
	}
	if opts.Filter != "" {
		params = append(params, "$filter="+opts.Filter)
	}
	if opts.Top != nil {
		params = append(params, "$top="+strconv.Itoa(*opts.Top))
	}
	if opts.Skip != nil {
		params = append(params, "$skip="+strconv.Itoa(*opts.Skip))
	}
	if opts.OrderBy != "" {
		params = append(params, "$orderby="+opts.OrderBy)
	}
	if len(opts.Expand) > 0 {
		params = append(params, "$expand="+strings.Join(opts.Expand, ","))
	}
	if opts.IncludeCount {
		params = append(params, "$count=true")
	}
	if opts.CrossCompany && product.SupportsCrossCompany() {
		params = append(params, "cross-company=true")
	}

	if len(params) == 0 {
		return ""
	}
	return "?" + strings.Join(params, "&")
}
